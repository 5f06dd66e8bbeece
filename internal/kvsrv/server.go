package kvsrv

import (
	"sync"

	"github.com/tamu-distsys-cloud/kvstore/internal/logx"
)

// dupEntry is the per-client dedup record: the last sequence number this
// client completed, and the reply that resulted, so a retried request with
// the same seq can be answered without reapplying it.
type dupEntry struct {
	lastSeq    int64
	lastReturn interface{}
}

// KVServer owns a single shard: an in-memory string store, a dedup
// table keyed by client id, and nothing else — replication, snapshots and
// leader election are out of scope.
type KVServer struct {
	mu sync.Mutex

	serverID int
	nShards  int

	store map[string]string
	dup   map[int64]dupEntry
}

// NewKVServer constructs the owner of shard serverID out of nShards.
func NewKVServer(serverID, nShards int) *KVServer {
	return &KVServer{
		serverID: serverID,
		nShards:  nShards,
		store:    make(map[string]string),
		dup:      make(map[int64]dupEntry),
	}
}

func (kv *KVServer) owns(key string) bool {
	return ShardOf(key, kv.nShards) == kv.serverID
}

// lookupDup implements the three-way dedup decision: an old seq replays
// the cached reply, the current seq replays it too, and a new seq means
// apply. ok reports whether the cached reply should be returned as-is
// without applying the operation.
func (kv *KVServer) lookupDup(clientID, seq int64) (reply interface{}, ok bool) {
	d, present := kv.dup[clientID]
	if !present {
		return nil, false
	}
	if seq < d.lastSeq {
		// Ancient duplicate: clients never reorder seq, so this path is
		// not exercised in practice. The reply cached for the client's
		// latest seq is returned as-is and nothing is applied.
		return d.lastReturn, true
	}
	if seq == d.lastSeq {
		return d.lastReturn, true
	}
	return nil, false
}

func (kv *KVServer) recordDup(clientID, seq int64, reply interface{}) {
	kv.dup[clientID] = dupEntry{lastSeq: seq, lastReturn: reply}
}

func (kv *KVServer) Get(args *GetArgs, reply *GetReply) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if !kv.owns(args.Key) {
		reply.Err = WrongShard
		return
	}

	if cached, ok := kv.lookupDup(args.ClientID, args.Seq); ok {
		r := cached.(GetReply)
		*reply = r
		return
	}

	reply.Value = kv.store[args.Key]
	reply.Err = OK
	kv.recordDup(args.ClientID, args.Seq, *reply)

	logx.Named("kvsrv").Debug().Int("shard", kv.serverID).Str("key", args.Key).Msg("get")
}

func (kv *KVServer) Put(args *PutAppendArgs, reply *PutAppendReply) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if !kv.owns(args.Key) {
		reply.Err = WrongShard
		return
	}

	if cached, ok := kv.lookupDup(args.ClientID, args.Seq); ok {
		r := cached.(PutAppendReply)
		*reply = r
		return
	}

	kv.store[args.Key] = args.Value
	reply.Err = OK
	kv.recordDup(args.ClientID, args.Seq, *reply)

	logx.Named("kvsrv").Debug().Int("shard", kv.serverID).Str("key", args.Key).Msg("put")
}

func (kv *KVServer) Append(args *PutAppendArgs, reply *PutAppendReply) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if !kv.owns(args.Key) {
		reply.Err = WrongShard
		return
	}

	if cached, ok := kv.lookupDup(args.ClientID, args.Seq); ok {
		r := cached.(PutAppendReply)
		*reply = r
		return
	}

	prev := kv.store[args.Key]
	kv.store[args.Key] = prev + args.Value
	reply.Value = prev
	reply.Err = OK
	kv.recordDup(args.ClientID, args.Seq, *reply)

	logx.Named("kvsrv").Debug().Int("shard", kv.serverID).Str("key", args.Key).Msg("append")
}
