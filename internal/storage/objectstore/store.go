// Package objectstore keeps records in an S3-compatible bucket, one object
// per record. Object bodies are the records' binary encoding.
//
// Layout:
//
//	users/<user>
//	channels/<channel>/meta
//	channels/<channel>/keys/<user>/<epoch>
//	channels/<channel>/messages/<created-nanos>-<id>
//	message-ids/<id>
package objectstore

import (
	"bytes"
	"context"
	"encoding"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/storage"
	"golang.org/x/sync/errgroup"
)

// API is the part of *s3.Client the store uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// fetchLimit bounds concurrent GetObject calls per listing.
const fetchLimit = 8

type Store struct {
	api    API
	bucket string
}

var _ storage.Store = (*Store)(nil)

func New(api API, bucket string) *Store {
	return &Store{api: api, bucket: bucket}
}

func esc(s string) string { return url.PathEscape(s) }

func userKey(userID string) string { return "users/" + esc(userID) }

func channelPrefix(channelID string) string { return "channels/" + esc(channelID) + "/" }

func metaKey(channelID string) string { return channelPrefix(channelID) + "meta" }

func keysPrefix(channelID string) string { return channelPrefix(channelID) + "keys/" }

func wrappedKey(channelID, userID string, epoch int64) string {
	return fmt.Sprintf("%s%s/%020d", keysPrefix(channelID), esc(userID), epoch)
}

func messagesPrefix(channelID string) string { return channelPrefix(channelID) + "messages/" }

func messageKey(m *models.EncryptedMessage) string {
	return fmt.Sprintf("%s%020d-%s", messagesPrefix(m.ChannelID), m.CreatedAt.UnixNano(), esc(m.ID))
}

func messageIDKey(id string) string { return "message-ids/" + esc(id) }

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var api smithy.APIError
	return errors.As(err, &api) && api.ErrorCode() == "NotFound"
}

func isPreconditionFailed(err error) bool {
	var api smithy.APIError
	return errors.As(err, &api) && api.ErrorCode() == "PreconditionFailed"
}

func (s *Store) put(ctx context.Context, key string, rec encoding.BinaryMarshaler, exclusive bool) error {
	body, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/octet-stream"),
	}
	if exclusive {
		in.IfNoneMatch = aws.String("*")
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		if exclusive && isPreconditionFailed(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, rec encoding.BinaryUnmarshaler) error {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("read object %s: %w", key, err)
	}
	return rec.UnmarshalBinary(body)
}

func (s *Store) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// listPrefixes returns the common prefixes one level below prefix.
func (s *Store) listPrefixes(ctx context.Context, prefix string) ([]string, error) {
	var prefixes []string
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(cp.Prefix))
		}
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

// fetchAll loads keys concurrently into the slots produced by alloc.
func fetchAll[T encoding.BinaryUnmarshaler](ctx context.Context, s *Store, keys []string, alloc func() T) ([]T, error) {
	out := make([]T, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchLimit)
	for i, key := range keys {
		out[i] = alloc()
		g.Go(func() error { return s.get(gctx, key, out[i]) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) PutUserKeyMaterial(ctx context.Context, userID string, m *models.UserKeyMaterial) error {
	if err := storage.CheckUserKeyMaterial(userID, m); err != nil {
		return err
	}
	return s.put(ctx, userKey(userID), m, false)
}

func (s *Store) GetUserKeyMaterial(ctx context.Context, userID string) (*models.UserKeyMaterial, error) {
	var m models.UserKeyMaterial
	if err := s.get(ctx, userKey(userID), &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("stored key material for %s: %w", userID, err)
	}
	return &m, nil
}

func (s *Store) PutWrappedChannelKey(ctx context.Context, channelID, userID string, w *models.WrappedChannelKey) error {
	if err := storage.CheckWrappedChannelKey(channelID, userID, w); err != nil {
		return err
	}
	return s.put(ctx, wrappedKey(channelID, userID, w.Epoch), w, false)
}

func (s *Store) GetWrappedChannelKey(ctx context.Context, channelID, userID string) (*models.WrappedChannelKey, error) {
	rows, err := s.ListWrappedChannelKeys(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, common.ErrorNotFound
	}
	return rows[len(rows)-1], nil
}

func (s *Store) ListWrappedChannelKeys(ctx context.Context, channelID, userID string) ([]*models.WrappedChannelKey, error) {
	keys, err := s.list(ctx, keysPrefix(channelID)+esc(userID)+"/")
	if err != nil {
		return nil, err
	}
	rows, err := fetchAll(ctx, s, keys, func() *models.WrappedChannelKey { return new(models.WrappedChannelKey) })
	if err != nil {
		return nil, err
	}
	for _, w := range rows {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("stored wrapped key: %w", err)
		}
	}
	return rows, nil
}

// members parses the key listing of a channel into the holders of its
// latest epoch.
func (s *Store) members(ctx context.Context, channelID string) ([]string, error) {
	prefix := keysPrefix(channelID)
	keys, err := s.list(ctx, prefix)
	if err != nil {
		return nil, err
	}
	byEpoch := make(map[int64][]string)
	var latest int64
	for _, k := range keys {
		user, epochStr, ok := strings.Cut(strings.TrimPrefix(k, prefix), "/")
		if !ok {
			continue
		}
		epoch, err := strconv.ParseInt(epochStr, 10, 64)
		if err != nil {
			continue
		}
		id, err := url.PathUnescape(user)
		if err != nil {
			continue
		}
		byEpoch[epoch] = append(byEpoch[epoch], id)
		latest = max(latest, epoch)
	}
	members := append([]string{}, byEpoch[latest]...)
	sort.Strings(members)
	return members, nil
}

func (s *Store) ListChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	return s.members(ctx, channelID)
}

func (s *Store) AppendMessage(ctx context.Context, m *models.EncryptedMessage) error {
	if err := m.Validate(); err != nil {
		return err
	}
	// the id marker is claimed first so a duplicate never lands in the listing
	if err := s.put(ctx, messageIDKey(m.ID), m, true); err != nil {
		return err
	}
	return s.put(ctx, messageKey(m), m, false)
}

func (s *Store) ListMessages(ctx context.Context, channelID string) ([]*models.EncryptedMessage, error) {
	keys, err := s.list(ctx, messagesPrefix(channelID))
	if err != nil {
		return nil, err
	}
	msgs, err := fetchAll(ctx, s, keys, func() *models.EncryptedMessage { return new(models.EncryptedMessage) })
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("stored message: %w", err)
		}
	}
	storage.SortMessages(msgs)
	return msgs, nil
}

// ListMessagesBefore picks the page from the key listing and fetches only
// the bodies it needs.
func (s *Store) ListMessagesBefore(ctx context.Context, channelID string, before storage.Cursor, limit int) ([]*models.EncryptedMessage, error) {
	limit, err := storage.CheckPageSize(limit)
	if err != nil {
		return nil, err
	}
	prefix := messagesPrefix(channelID)
	keys, err := s.list(ctx, prefix)
	if err != nil {
		return nil, err
	}

	type entry struct {
		key     string
		created time.Time
		id      string
	}
	var entries []entry
	for _, k := range keys {
		nanosStr, escID, ok := strings.Cut(strings.TrimPrefix(k, prefix), "-")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(nanosStr, 10, 64)
		if err != nil {
			continue
		}
		id, err := url.PathUnescape(escID)
		if err != nil {
			continue
		}
		created := time.Unix(0, n).UTC()
		if before.Precedes(created, id) {
			entries = append(entries, entry{key: k, created: created, id: id})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].created.Equal(entries[j].created) {
			return entries[i].created.Before(entries[j].created)
		}
		return entries[i].id < entries[j].id
	})
	entries = entries[max(0, len(entries)-limit):]

	page := make([]string, len(entries))
	for i, e := range entries {
		page[i] = e.key
	}
	msgs, err := fetchAll(ctx, s, page, func() *models.EncryptedMessage { return new(models.EncryptedMessage) })
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("stored message: %w", err)
		}
	}
	storage.SortMessages(msgs)
	return msgs, nil
}

func (s *Store) PutChannel(ctx context.Context, c *models.Channel) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return s.put(ctx, metaKey(c.ID), c, false)
}

func (s *Store) GetChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	var c models.Channel
	if err := s.get(ctx, metaKey(channelID), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChannels walks the channel prefixes rather than every object under
// them, so its cost does not grow with message history.
func (s *Store) ListChannels(ctx context.Context, userID string) ([]*models.Channel, error) {
	prefixes, err := s.listPrefixes(ctx, "channels/")
	if err != nil {
		return nil, err
	}

	out := []*models.Channel{}
	for _, p := range prefixes {
		id, err := url.PathUnescape(strings.TrimSuffix(strings.TrimPrefix(p, "channels/"), "/"))
		if err != nil {
			continue
		}
		members, err := s.members(ctx, id)
		if err != nil {
			return nil, err
		}
		i := sort.SearchStrings(members, userID)
		if i == len(members) || members[i] != userID {
			continue
		}
		c, err := s.GetChannel(ctx, id)
		if errors.Is(err, common.ErrorNotFound) {
			// keys were written before the descriptor
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	storage.SortChannels(out)
	return out, nil
}

func (s *Store) Close() error { return nil }
