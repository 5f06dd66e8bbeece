// Package kvsrv implements a sharded key/value service with no consensus
// and no cross-shard transactions: every shard has exactly one owning
// server, and clients route each request by hashing the key.
package kvsrv

import "hash/fnv"

// Err is the service's only application-level failure. Transport failures
// (dropped RPCs, dead servers) never surface here — the fabric reports
// those as a plain false from ClientEnd.Call.
type Err string

const (
	OK         Err = "OK"
	WrongShard Err = "WrongShard"
)

type GetArgs struct {
	Key      string
	ClientID int64
	Seq      int64
}

type GetReply struct {
	Value string
	Err   Err
}

type PutAppendArgs struct {
	Key      string
	Value    string
	ClientID int64
	Seq      int64
}

type PutAppendReply struct {
	// Value holds the pre-append value for Append; unused for Put.
	Value string
	Err   Err
}

// ShardOf deterministically maps a key to one of nShards shards via
// FNV-1a 64-bit, shared verbatim by client and server.
func ShardOf(key string, nShards int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum64() % uint64(nShards))
}
