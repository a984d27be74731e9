package storage

import (
	"encoding/binary"
	"fmt"
	"time"

	"agora/internal/auth"
	"agora/internal/chat"
	"agora/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers      = []byte("users")
	bucketMessages   = []byte("messages")
	bucketRooms      = []byte("rooms")
	bucketRoomIndex  = []byte("room_index")
	bucketRateLimits = []byte("rate_limits")
	bucketAudit      = []byte("audit")
	bucketMeta       = []byte("meta")
	bucketTokens     = []byte("tokens")

	keyNextMessageID = []byte("next_message_id")
	keySavedAt       = []byte("saved_at")
)

// snapshotBuckets are rewritten as a whole on every checkpoint.
var snapshotBuckets = [][]byte{
	bucketUsers,
	bucketMessages,
	bucketRooms,
	bucketRoomIndex,
	bucketRateLimits,
	bucketAudit,
	bucketMeta,
}

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range append(snapshotBuckets, bucketTokens) {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

func put(b *bbolt.Bucket, item Storeable) error {
	data, err := item.MarshalBinary()
	if err != nil {
		return err
	}
	return b.Put(item.Key(), data)
}

// SaveSnapshot replaces the stored checkpoint with snap in a single transaction.
func (s *BboltStorage) SaveSnapshot(snap chat.Snapshot) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range snapshotBuckets {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return fmt.Errorf("failed to drop bucket %s: %w", name, err)
				}
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		users := tx.Bucket(bucketUsers)
		for i, e := range snap.Users {
			if err := put(users, toDBUser(int64(i), e)); err != nil {
				return fmt.Errorf("failed to put user %s: %w", e.Identity, err)
			}
		}

		messages := tx.Bucket(bucketMessages)
		for _, e := range snap.Messages {
			if err := put(messages, toDBMessage(e.Message)); err != nil {
				return fmt.Errorf("failed to put message %d: %w", e.ID, err)
			}
		}

		rooms := tx.Bucket(bucketRooms)
		for i, r := range snap.Rooms {
			dbRoom := &DBRoom{
				Seq:       int64(i),
				ID:        r.ID,
				Name:      r.Name,
				ReadOnly:  r.ReadOnly,
				CreatedBy: string(r.CreatedBy),
				Created:   r.Created,
			}
			if err := put(rooms, dbRoom); err != nil {
				return fmt.Errorf("failed to put room %s: %w", r.ID, err)
			}
		}

		pins := make(map[string][]int64, len(snap.Pins))
		for _, p := range snap.Pins {
			pins[p.RoomID] = p.MessageIDs
		}
		index := tx.Bucket(bucketRoomIndex)
		for _, idx := range snap.RoomIndex {
			dbIndex := &DBRoomIndex{RoomID: idx.RoomID, MessageIDs: idx.MessageIDs, Pins: pins[idx.RoomID]}
			if err := put(index, dbIndex); err != nil {
				return fmt.Errorf("failed to put index of room %s: %w", idx.RoomID, err)
			}
		}

		limits := tx.Bucket(bucketRateLimits)
		for _, e := range snap.RateLimits {
			dbLimit := &DBRateLimit{
				Identity:  string(e.Identity),
				LastSend:  e.State.LastSend,
				DayBucket: e.State.DayBucket,
				DayCount:  e.State.DayCount,
			}
			if err := put(limits, dbLimit); err != nil {
				return err
			}
		}

		audit := tx.Bucket(bucketAudit)
		for i, e := range snap.Audit {
			dbEntry := &DBAuditEntry{
				Seq:       int64(i),
				Timestamp: e.Timestamp,
				Actor:     string(e.Actor),
				Action:    string(e.Action),
				Target:    string(e.Target),
				MessageID: e.MessageID,
				Detail:    e.Detail,
			}
			if err := put(audit, dbEntry); err != nil {
				return err
			}
		}

		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(keyNextMessageID, seqKey(snap.NextMessageID)); err != nil {
			return err
		}
		return meta.Put(keySavedAt, seqKey(time.Now().UnixMilli()))
	})
}

// LoadSnapshot reads the stored checkpoint. It reports false when nothing was saved yet.
func (s *BboltStorage) LoadSnapshot() (chat.Snapshot, bool, error) {
	var snap chat.Snapshot
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		next := tx.Bucket(bucketMeta).Get(keyNextMessageID)
		if next == nil {
			return nil
		}
		if len(next) != 8 {
			return fmt.Errorf("corrupt meta record %s", keyNextMessageID)
		}
		found = true
		snap.NextMessageID = int64(binary.BigEndian.Uint64(next))

		err := tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			snap.Users = append(snap.Users, fromDBUser(dbUser))
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read users: %w", err)
		}

		err = tx.Bucket(bucketMessages).ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			snap.Messages = append(snap.Messages, chat.MessageEntry{ID: dbMsg.ID, Message: fromDBMessage(dbMsg)})
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read messages: %w", err)
		}

		err = tx.Bucket(bucketRooms).ForEach(func(k, v []byte) error {
			var dbRoom DBRoom
			if err := dbRoom.UnmarshalBinary(v); err != nil {
				return err
			}
			snap.Rooms = append(snap.Rooms, models.Room{
				ID:        dbRoom.ID,
				Name:      dbRoom.Name,
				ReadOnly:  dbRoom.ReadOnly,
				CreatedBy: models.Identity(dbRoom.CreatedBy),
				Created:   dbRoom.Created,
			})
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read rooms: %w", err)
		}

		indexes := make(map[string]DBRoomIndex)
		err = tx.Bucket(bucketRoomIndex).ForEach(func(k, v []byte) error {
			var dbIndex DBRoomIndex
			if err := dbIndex.UnmarshalBinary(v); err != nil {
				return err
			}
			indexes[dbIndex.RoomID] = dbIndex
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read room index: %w", err)
		}
		// Index records are keyed by room id; emit them in room creation order.
		for _, r := range snap.Rooms {
			idx, ok := indexes[r.ID]
			if !ok {
				continue
			}
			snap.RoomIndex = append(snap.RoomIndex, chat.RoomIndex{RoomID: r.ID, MessageIDs: idx.MessageIDs})
			if len(idx.Pins) > 0 {
				snap.Pins = append(snap.Pins, chat.RoomIndex{RoomID: r.ID, MessageIDs: idx.Pins})
			}
		}

		err = tx.Bucket(bucketRateLimits).ForEach(func(k, v []byte) error {
			var dbLimit DBRateLimit
			if err := dbLimit.UnmarshalBinary(v); err != nil {
				return err
			}
			snap.RateLimits = append(snap.RateLimits, chat.RateLimitEntry{
				Identity: models.Identity(dbLimit.Identity),
				State: chat.RateLimitState{
					LastSend:  dbLimit.LastSend,
					DayBucket: dbLimit.DayBucket,
					DayCount:  dbLimit.DayCount,
				},
			})
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read rate limits: %w", err)
		}

		err = tx.Bucket(bucketAudit).ForEach(func(k, v []byte) error {
			var dbEntry DBAuditEntry
			if err := dbEntry.UnmarshalBinary(v); err != nil {
				return err
			}
			snap.Audit = append(snap.Audit, models.AuditEntry{
				Timestamp: dbEntry.Timestamp,
				Actor:     models.Identity(dbEntry.Actor),
				Action:    models.AuditAction(dbEntry.Action),
				Target:    models.Identity(dbEntry.Target),
				MessageID: dbEntry.MessageID,
				Detail:    dbEntry.Detail,
			})
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return chat.Snapshot{}, false, err
	}
	return snap, found, nil
}

// SavedAt returns when the last checkpoint was written.
func (s *BboltStorage) SavedAt() (time.Time, bool, error) {
	var at time.Time
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(keySavedAt)
		if len(v) != 8 {
			return nil
		}
		found = true
		at = time.UnixMilli(int64(binary.BigEndian.Uint64(v)))
		return nil
	})
	return at, found, err
}

func toDBUser(seq int64, e chat.UserEntry) *DBUser {
	u := e.User
	return &DBUser{
		Seq:          seq,
		Identity:     string(e.Identity),
		DisplayName:  u.DisplayName,
		UserName:     u.UserName,
		Bio:          u.Bio,
		AvatarURL:    u.AvatarURL,
		Role:         string(u.Role),
		Banned:       u.Banned,
		BannedUntil:  u.BannedUntil,
		LastSeen:     u.LastSeen,
		Joined:       u.Joined,
		MessageCount: u.MessageCount,
		Status:       string(u.Status),
	}
}

func fromDBUser(dbUser DBUser) chat.UserEntry {
	id := models.Identity(dbUser.Identity)
	return chat.UserEntry{
		Identity: id,
		User: models.User{
			Identity:     id,
			DisplayName:  dbUser.DisplayName,
			UserName:     dbUser.UserName,
			Bio:          dbUser.Bio,
			AvatarURL:    dbUser.AvatarURL,
			Role:         models.Role(dbUser.Role),
			Banned:       dbUser.Banned,
			BannedUntil:  dbUser.BannedUntil,
			LastSeen:     dbUser.LastSeen,
			Joined:       dbUser.Joined,
			MessageCount: dbUser.MessageCount,
			Status:       models.UserStatus(dbUser.Status),
		},
	}
}

func toDBMessage(m models.Message) *DBMessage {
	dbMessage := &DBMessage{
		ID:        m.ID,
		Sender:    string(m.Sender),
		RoomID:    m.RoomID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Edited:    m.Edited,
		EditedAt:  m.EditedAt,
		Deleted:   m.Deleted,
		Pinned:    m.Pinned,
		ReplyTo:   m.ReplyTo,
	}
	if len(m.Reactions) > 0 {
		dbMessage.Reactions = make([]DBReaction, len(m.Reactions))
		for i, r := range m.Reactions {
			dbMessage.Reactions[i] = DBReaction{Reactor: string(r.Reactor), Emoji: r.Emoji, Timestamp: r.Timestamp}
		}
	}
	if len(m.Attachments) > 0 {
		dbMessage.Attachments = make([]DBAttachment, len(m.Attachments))
		for i, a := range m.Attachments {
			dbMessage.Attachments[i] = DBAttachment{Name: a.Name, MimeType: a.MimeType, Size: a.Size, FileID: a.FileID}
		}
	}
	return dbMessage
}

func fromDBMessage(dbMsg DBMessage) models.Message {
	msg := models.Message{
		ID:        dbMsg.ID,
		Sender:    models.Identity(dbMsg.Sender),
		RoomID:    dbMsg.RoomID,
		Content:   dbMsg.Content,
		Timestamp: dbMsg.Timestamp,
		Edited:    dbMsg.Edited,
		EditedAt:  dbMsg.EditedAt,
		Deleted:   dbMsg.Deleted,
		Pinned:    dbMsg.Pinned,
		ReplyTo:   dbMsg.ReplyTo,
	}
	if len(dbMsg.Reactions) > 0 {
		msg.Reactions = make([]models.Reaction, len(dbMsg.Reactions))
		for i, r := range dbMsg.Reactions {
			msg.Reactions[i] = models.Reaction{Reactor: models.Identity(r.Reactor), Emoji: r.Emoji, Timestamp: r.Timestamp}
		}
	}
	if len(dbMsg.Attachments) > 0 {
		msg.Attachments = make([]models.Attachment, len(dbMsg.Attachments))
		for i, a := range dbMsg.Attachments {
			msg.Attachments[i] = models.Attachment{Name: a.Name, MimeType: a.MimeType, Size: a.Size, FileID: a.FileID}
		}
	}
	return msg
}

func (s *BboltStorage) UpsertToken(rec auth.TokenRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbToken := &DBToken{
			Hash:      rec.Hash,
			Identity:  string(rec.Identity),
			ExpiresAt: rec.ExpiresAt,
		}
		return put(tx.Bucket(bucketTokens), dbToken)
	})
}

func (s *BboltStorage) DeleteToken(hash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTokens).Delete([]byte(hash))
	})
}

func (s *BboltStorage) ListTokens() ([]auth.TokenRecord, error) {
	var tokens []auth.TokenRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTokens).ForEach(func(k, v []byte) error {
			var dbToken DBToken
			if err := dbToken.UnmarshalBinary(v); err != nil {
				return err
			}
			tokens = append(tokens, auth.TokenRecord{
				Hash:      dbToken.Hash,
				Identity:  models.Identity(dbToken.Identity),
				ExpiresAt: dbToken.ExpiresAt,
			})
			return nil
		})
	})
	return tokens, err
}
