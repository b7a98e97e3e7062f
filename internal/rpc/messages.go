package rpc

import (
	"time"

	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/wire"
)

// Empty is the response of write calls.
type Empty struct{}

func (*Empty) MarshalBinary() ([]byte, error) { return []byte{}, nil }

func (*Empty) UnmarshalBinary(data []byte) error {
	return wire.Walk(data, func(wire.Field) error { return nil })
}

// UserRequest names a user.
type UserRequest struct {
	UserID string
}

func (r *UserRequest) MarshalBinary() ([]byte, error) {
	var b wire.Builder
	b.String(1, r.UserID)
	return b.Finish(), nil
}

func (r *UserRequest) UnmarshalBinary(data []byte) error {
	*r = UserRequest{}
	return wire.Walk(data, func(f wire.Field) error {
		if f.Num == 1 {
			r.UserID = f.Str()
		}
		return nil
	})
}

// ChannelRequest names a channel.
type ChannelRequest struct {
	ChannelID string
}

func (r *ChannelRequest) MarshalBinary() ([]byte, error) {
	var b wire.Builder
	b.String(1, r.ChannelID)
	return b.Finish(), nil
}

func (r *ChannelRequest) UnmarshalBinary(data []byte) error {
	*r = ChannelRequest{}
	return wire.Walk(data, func(f wire.Field) error {
		if f.Num == 1 {
			r.ChannelID = f.Str()
		}
		return nil
	})
}

// SlotRequest names a (channel, user) wrapped key slot.
type SlotRequest struct {
	ChannelID string
	UserID    string
}

func (r *SlotRequest) MarshalBinary() ([]byte, error) {
	var b wire.Builder
	b.String(1, r.ChannelID)
	b.String(2, r.UserID)
	return b.Finish(), nil
}

func (r *SlotRequest) UnmarshalBinary(data []byte) error {
	*r = SlotRequest{}
	return wire.Walk(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			r.ChannelID = f.Str()
		case 2:
			r.UserID = f.Str()
		}
		return nil
	})
}

// PageRequest asks for up to Limit messages older than the cursor
// (BeforeTime, BeforeID). A zero cursor starts from the newest message.
type PageRequest struct {
	ChannelID  string
	BeforeTime time.Time
	BeforeID   string
	Limit      int64
}

func (r *PageRequest) MarshalBinary() ([]byte, error) {
	var b wire.Builder
	b.String(1, r.ChannelID)
	b.Time(2, r.BeforeTime)
	b.String(3, r.BeforeID)
	b.Int64(4, r.Limit)
	return b.Finish(), nil
}

func (r *PageRequest) UnmarshalBinary(data []byte) error {
	*r = PageRequest{}
	return wire.Walk(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			r.ChannelID = f.Str()
		case 2:
			r.BeforeTime = f.Time()
		case 3:
			r.BeforeID = f.Str()
		case 4:
			r.Limit = f.Int64()
		}
		return nil
	})
}

type PutUserKeyMaterialRequest struct {
	UserID   string
	Material *models.UserKeyMaterial
}

func (r *PutUserKeyMaterialRequest) MarshalBinary() ([]byte, error) {
	var b wire.Builder
	b.String(1, r.UserID)
	if r.Material != nil {
		m, err := r.Material.MarshalBinary()
		if err != nil {
			return nil, err
		}
		b.Message(2, m)
	}
	return b.Finish(), nil
}

func (r *PutUserKeyMaterialRequest) UnmarshalBinary(data []byte) error {
	*r = PutUserKeyMaterialRequest{}
	return wire.Walk(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			r.UserID = f.Str()
		case 2:
			r.Material = new(models.UserKeyMaterial)
			return r.Material.UnmarshalBinary(f.Raw())
		}
		return nil
	})
}

type PutWrappedKeyRequest struct {
	ChannelID string
	UserID    string
	Key       *models.WrappedChannelKey
}

func (r *PutWrappedKeyRequest) MarshalBinary() ([]byte, error) {
	var b wire.Builder
	b.String(1, r.ChannelID)
	b.String(2, r.UserID)
	if r.Key != nil {
		k, err := r.Key.MarshalBinary()
		if err != nil {
			return nil, err
		}
		b.Message(3, k)
	}
	return b.Finish(), nil
}

func (r *PutWrappedKeyRequest) UnmarshalBinary(data []byte) error {
	*r = PutWrappedKeyRequest{}
	return wire.Walk(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			r.ChannelID = f.Str()
		case 2:
			r.UserID = f.Str()
		case 3:
			r.Key = new(models.WrappedChannelKey)
			return r.Key.UnmarshalBinary(f.Raw())
		}
		return nil
	})
}

// StringList is a repeated string.
type StringList struct {
	Values []string
}

func (l *StringList) MarshalBinary() ([]byte, error) {
	var b wire.Builder
	for _, v := range l.Values {
		b.Message(1, []byte(v))
	}
	return b.Finish(), nil
}

func (l *StringList) UnmarshalBinary(data []byte) error {
	l.Values = []string{}
	return wire.Walk(data, func(f wire.Field) error {
		if f.Num == 1 {
			l.Values = append(l.Values, f.Str())
		}
		return nil
	})
}

// list is a repeated embedded record at field 1.
type list[T any, P interface {
	*T
	Message
}] struct {
	Items []P
}

func (l *list[T, P]) MarshalBinary() ([]byte, error) {
	var b wire.Builder
	for _, it := range l.Items {
		data, err := it.MarshalBinary()
		if err != nil {
			return nil, err
		}
		b.Message(1, data)
	}
	return b.Finish(), nil
}

func (l *list[T, P]) UnmarshalBinary(data []byte) error {
	l.Items = []P{}
	return wire.Walk(data, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		it := P(new(T))
		if err := it.UnmarshalBinary(f.Raw()); err != nil {
			return err
		}
		l.Items = append(l.Items, it)
		return nil
	})
}

type (
	WrappedKeyList = list[models.WrappedChannelKey, *models.WrappedChannelKey]
	MessageList    = list[models.EncryptedMessage, *models.EncryptedMessage]
	ChannelList    = list[models.Channel, *models.Channel]
)
