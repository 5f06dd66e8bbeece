package kvsrv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPutAppendHappyPath(t *testing.T) {
	kv := NewKVServer(0, 1)

	var getReply GetReply
	kv.Get(&GetArgs{Key: "k", ClientID: 1, Seq: 1}, &getReply)
	assert.Equal(t, OK, getReply.Err)
	assert.Equal(t, "", getReply.Value)

	var putReply PutAppendReply
	kv.Put(&PutAppendArgs{Key: "k", Value: "a", ClientID: 1, Seq: 2}, &putReply)
	require.Equal(t, OK, putReply.Err)

	var appendReply PutAppendReply
	kv.Append(&PutAppendArgs{Key: "k", Value: "b", ClientID: 1, Seq: 3}, &appendReply)
	require.Equal(t, OK, appendReply.Err)
	assert.Equal(t, "a", appendReply.Value, "Append reply carries the pre-append value")

	kv.Get(&GetArgs{Key: "k", ClientID: 1, Seq: 4}, &getReply)
	assert.Equal(t, "ab", getReply.Value)
}

func TestWrongShardRejected(t *testing.T) {
	kv := NewKVServer(0, 4)
	var key string
	for i := 0; ; i++ {
		k := string(rune('a' + i))
		if ShardOf(k, 4) != 0 {
			key = k
			break
		}
	}

	var reply GetReply
	kv.Get(&GetArgs{Key: key, ClientID: 1, Seq: 1}, &reply)
	assert.Equal(t, WrongShard, reply.Err)
}

func TestDuplicateSeqReplaysCachedReply(t *testing.T) {
	kv := NewKVServer(0, 1)

	var first, second PutAppendReply
	kv.Append(&PutAppendArgs{Key: "k", Value: "a", ClientID: 7, Seq: 1}, &first)
	kv.Append(&PutAppendArgs{Key: "k", Value: "a", ClientID: 7, Seq: 1}, &second)
	assert.Equal(t, first, second, "retried request with unchanged seq must not re-apply")

	var getReply GetReply
	kv.Get(&GetArgs{Key: "k", ClientID: 7, Seq: 2}, &getReply)
	assert.Equal(t, "a", getReply.Value, "the duplicate append must not have applied twice")
}

func TestNewSeqAppliesAndAdvancesDedup(t *testing.T) {
	kv := NewKVServer(0, 1)

	var r1, r2 PutAppendReply
	kv.Append(&PutAppendArgs{Key: "k", Value: "a", ClientID: 7, Seq: 1}, &r1)
	kv.Append(&PutAppendArgs{Key: "k", Value: "b", ClientID: 7, Seq: 2}, &r2)

	assert.Equal(t, "", r1.Value)
	assert.Equal(t, "a", r2.Value)
}

func TestDifferentClientsDoNotShareDedupState(t *testing.T) {
	kv := NewKVServer(0, 1)

	var r1, r2 PutAppendReply
	kv.Append(&PutAppendArgs{Key: "k", Value: "a", ClientID: 1, Seq: 1}, &r1)
	kv.Append(&PutAppendArgs{Key: "k", Value: "b", ClientID: 2, Seq: 1}, &r2)

	assert.Equal(t, "", r1.Value)
	assert.Equal(t, "a", r2.Value)
}
