package kvsrv

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/tamu-distsys-cloud/kvstore/internal/labrpc"
)

// wrongShardBackoff bounds how long the Clerk waits between a WrongShard
// reply and its retry.
const wrongShardBackoff = 20 * time.Millisecond

// Clerk is the sharded KV client: it owns one ClientEnd per shard and
// routes every request by hashing the key, retrying forever across both
// transport failures and application-level WrongShard replies.
type Clerk struct {
	endpoints []*labrpc.ClientEnd
	nShards   int
	clientID  int64
	seq       int64
}

func nrand() int64 {
	max := big.NewInt(int64(1) << 62)
	bigx, _ := rand.Int(rand.Reader, max)
	return bigx.Int64()
}

// MakeClerk builds a Clerk with one endpoint per shard; endpoints[i] must
// reach the server owning shard i.
func MakeClerk(endpoints []*labrpc.ClientEnd) *Clerk {
	return &Clerk{
		endpoints: endpoints,
		nShards:   len(endpoints),
		clientID:  nrand(),
	}
}

func (ck *Clerk) nextSeq() int64 {
	ck.seq++
	return ck.seq
}

// Get returns the key's stored value, or "" if it was never written.
func (ck *Clerk) Get(key string) string {
	seq := ck.nextSeq()
	args := GetArgs{Key: key, ClientID: ck.clientID, Seq: seq}
	end := ck.endpoints[ShardOf(key, ck.nShards)]

	for {
		var reply GetReply
		ok := end.Call("KVServer.Get", &args, &reply)
		if !ok {
			continue
		}
		if reply.Err == WrongShard {
			time.Sleep(wrongShardBackoff)
			continue
		}
		return reply.Value
	}
}

func (ck *Clerk) putAppend(key, value, op string) string {
	seq := ck.nextSeq()
	args := PutAppendArgs{Key: key, Value: value, ClientID: ck.clientID, Seq: seq}
	end := ck.endpoints[ShardOf(key, ck.nShards)]
	method := "KVServer." + op

	for {
		var reply PutAppendReply
		ok := end.Call(method, &args, &reply)
		if !ok {
			continue
		}
		if reply.Err == WrongShard {
			time.Sleep(wrongShardBackoff)
			continue
		}
		return reply.Value
	}
}

// Put stores value at key, retrying until the owning server acknowledges it.
func (ck *Clerk) Put(key, value string) {
	ck.putAppend(key, value, "Put")
}

// Append extends the value stored at key and returns the value that was
// there immediately before this append.
func (ck *Clerk) Append(key, value string) string {
	return ck.putAppend(key, value, "Append")
}
