package models

import (
	"github.com/dmitrijs2005/gophchat/internal/wire"
)

// Field numbers are part of the stored format; never renumber.

func (m *UserKeyMaterial) MarshalBinary() ([]byte, error) {
	var b wire.Builder
	b.String(1, m.UserID)
	b.Bytes(2, m.PublicKey)
	b.Bytes(3, m.EncryptedPrivateKey)
	b.Bytes(4, m.PrivateKeyIV)
	b.Bytes(5, m.Salt)
	b.Uint64(6, uint64(m.KDF.Time))
	b.Uint64(7, uint64(m.KDF.MemoryKiB))
	b.Uint64(8, uint64(m.KDF.Threads))
	b.Time(9, m.UpdatedAt)
	return b.Finish(), nil
}

func (m *UserKeyMaterial) UnmarshalBinary(data []byte) error {
	*m = UserKeyMaterial{}
	return wire.Walk(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			m.UserID = f.Str()
		case 2:
			m.PublicKey = f.Raw()
		case 3:
			m.EncryptedPrivateKey = f.Raw()
		case 4:
			m.PrivateKeyIV = f.Raw()
		case 5:
			m.Salt = f.Raw()
		case 6:
			m.KDF.Time = uint32(f.Uint64())
		case 7:
			m.KDF.MemoryKiB = uint32(f.Uint64())
		case 8:
			m.KDF.Threads = uint8(f.Uint64())
		case 9:
			m.UpdatedAt = f.Time()
		}
		return nil
	})
}

func (w *WrappedChannelKey) MarshalBinary() ([]byte, error) {
	var b wire.Builder
	b.String(1, w.ChannelID)
	b.String(2, w.UserID)
	b.Int64(3, w.Epoch)
	b.Bytes(4, w.WrappedKey)
	b.String(5, w.IssuerID)
	b.Time(6, w.CreatedAt)
	return b.Finish(), nil
}

func (w *WrappedChannelKey) UnmarshalBinary(data []byte) error {
	*w = WrappedChannelKey{}
	return wire.Walk(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			w.ChannelID = f.Str()
		case 2:
			w.UserID = f.Str()
		case 3:
			w.Epoch = f.Int64()
		case 4:
			w.WrappedKey = f.Raw()
		case 5:
			w.IssuerID = f.Str()
		case 6:
			w.CreatedAt = f.Time()
		}
		return nil
	})
}

func (m *EncryptedMessage) MarshalBinary() ([]byte, error) {
	var b wire.Builder
	b.String(1, m.ID)
	b.String(2, m.ChannelID)
	b.String(3, m.UserID)
	b.Int64(4, m.KeyEpoch)
	b.Bytes(5, m.Ciphertext)
	b.Bytes(6, m.IV)
	b.Time(7, m.CreatedAt)
	return b.Finish(), nil
}

func (m *EncryptedMessage) UnmarshalBinary(data []byte) error {
	*m = EncryptedMessage{}
	return wire.Walk(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			m.ID = f.Str()
		case 2:
			m.ChannelID = f.Str()
		case 3:
			m.UserID = f.Str()
		case 4:
			m.KeyEpoch = f.Int64()
		case 5:
			m.Ciphertext = f.Raw()
		case 6:
			m.IV = f.Raw()
		case 7:
			m.CreatedAt = f.Time()
		}
		return nil
	})
}

func (c *Channel) MarshalBinary() ([]byte, error) {
	var b wire.Builder
	b.String(1, c.ID)
	b.String(2, c.Name)
	b.String(3, c.Description)
	b.Bool(4, c.IsDirect)
	b.String(5, c.CreatedBy)
	b.Time(6, c.CreatedAt)
	return b.Finish(), nil
}

func (c *Channel) UnmarshalBinary(data []byte) error {
	*c = Channel{}
	return wire.Walk(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			c.ID = f.Str()
		case 2:
			c.Name = f.Str()
		case 3:
			c.Description = f.Str()
		case 4:
			c.IsDirect = f.Bool()
		case 5:
			c.CreatedBy = f.Str()
		case 6:
			c.CreatedAt = f.Time()
		}
		return nil
	})
}
