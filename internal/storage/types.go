package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

func seqKey(seq int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seq))
	return key
}

type DBToken struct {
	Hash      string `msgpack:"hash"`
	Identity  string `msgpack:"identity"`
	ExpiresAt int64  `msgpack:"expiresAt"`
}

func (t *DBToken) Key() []byte {
	return []byte(t.Hash)
}

func (t *DBToken) MarshalBinary() (data []byte, err error) {
	type alias DBToken
	return msgpack.Marshal((*alias)(t))
}

func (t *DBToken) UnmarshalBinary(data []byte) error {
	type alias DBToken
	return msgpack.Unmarshal(data, (*alias)(t))
}

// DBUser is keyed by join position so a bucket scan returns users in join order.
type DBUser struct {
	Seq          int64  `msgpack:"seq"`
	Identity     string `msgpack:"identity"`
	DisplayName  string `msgpack:"displayName"`
	UserName     string `msgpack:"userName"`
	Bio          string `msgpack:"bio"`
	AvatarURL    string `msgpack:"avatarUrl"`
	Role         string `msgpack:"role"`
	Banned       bool   `msgpack:"banned"`
	BannedUntil  int64  `msgpack:"bannedUntil"`
	LastSeen     int64  `msgpack:"lastSeen"`
	Joined       int64  `msgpack:"joined"`
	MessageCount int64  `msgpack:"messageCount"`
	Status       string `msgpack:"status"`
}

func (u *DBUser) Key() []byte {
	return seqKey(u.Seq)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBRoom struct {
	Seq       int64  `msgpack:"seq"`
	ID        string `msgpack:"id"`
	Name      string `msgpack:"name"`
	ReadOnly  bool   `msgpack:"readOnly"`
	CreatedBy string `msgpack:"createdBy"`
	Created   int64  `msgpack:"created"`
}

func (r *DBRoom) Key() []byte {
	return seqKey(r.Seq)
}

func (r *DBRoom) MarshalBinary() (data []byte, err error) {
	type alias DBRoom
	return msgpack.Marshal((*alias)(r))
}

func (r *DBRoom) UnmarshalBinary(data []byte) error {
	type alias DBRoom
	return msgpack.Unmarshal(data, (*alias)(r))
}

// DBRoomIndex holds the ascending message ids of a room and its pins, oldest pin first.
type DBRoomIndex struct {
	RoomID     string  `msgpack:"roomId"`
	MessageIDs []int64 `msgpack:"messageIds"`
	Pins       []int64 `msgpack:"pins"`
}

func (i *DBRoomIndex) Key() []byte {
	return []byte(i.RoomID)
}

func (i *DBRoomIndex) MarshalBinary() (data []byte, err error) {
	type alias DBRoomIndex
	return msgpack.Marshal((*alias)(i))
}

func (i *DBRoomIndex) UnmarshalBinary(data []byte) error {
	type alias DBRoomIndex
	return msgpack.Unmarshal(data, (*alias)(i))
}

type DBMessage struct {
	ID          int64          `msgpack:"id"`
	Sender      string         `msgpack:"sender"`
	RoomID      string         `msgpack:"roomId"`
	Content     string         `msgpack:"content"`
	Timestamp   int64          `msgpack:"timestamp"`
	Edited      bool           `msgpack:"edited"`
	EditedAt    int64          `msgpack:"editedAt"`
	Deleted     bool           `msgpack:"deleted"`
	Pinned      bool           `msgpack:"pinned"`
	ReplyTo     *int64         `msgpack:"replyTo"`
	Reactions   []DBReaction   `msgpack:"reactions"`
	Attachments []DBAttachment `msgpack:"attachments"`
}

type DBReaction struct {
	Reactor   string `msgpack:"reactor"`
	Emoji     string `msgpack:"emoji"`
	Timestamp int64  `msgpack:"timestamp"`
}

type DBAttachment struct {
	Name     string `msgpack:"name"`
	MimeType string `msgpack:"mimeType"`
	Size     int64  `msgpack:"size"`
	FileID   string `msgpack:"fileId"`
}

func (m *DBMessage) Key() []byte {
	return seqKey(m.ID)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

type DBRateLimit struct {
	Identity  string `msgpack:"identity"`
	LastSend  int64  `msgpack:"lastSend"`
	DayBucket int64  `msgpack:"dayBucket"`
	DayCount  int    `msgpack:"dayCount"`
}

func (r *DBRateLimit) Key() []byte {
	return []byte(r.Identity)
}

func (r *DBRateLimit) MarshalBinary() (data []byte, err error) {
	type alias DBRateLimit
	return msgpack.Marshal((*alias)(r))
}

func (r *DBRateLimit) UnmarshalBinary(data []byte) error {
	type alias DBRateLimit
	return msgpack.Unmarshal(data, (*alias)(r))
}

type DBAuditEntry struct {
	Seq       int64  `msgpack:"seq"`
	Timestamp int64  `msgpack:"timestamp"`
	Actor     string `msgpack:"actor"`
	Action    string `msgpack:"action"`
	Target    string `msgpack:"target"`
	MessageID *int64 `msgpack:"messageId"`
	Detail    string `msgpack:"detail"`
}

func (a *DBAuditEntry) Key() []byte {
	return seqKey(a.Seq)
}

func (a *DBAuditEntry) MarshalBinary() (data []byte, err error) {
	type alias DBAuditEntry
	return msgpack.Marshal((*alias)(a))
}

func (a *DBAuditEntry) UnmarshalBinary(data []byte) error {
	type alias DBAuditEntry
	return msgpack.Unmarshal(data, (*alias)(a))
}
