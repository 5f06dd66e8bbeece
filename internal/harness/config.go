// Package harness wires an in-memory labrpc.Network together with one
// kvsrv.KVServer per shard and a pool of Clerks, the way
// original_source/config.py wires the Python Network/Clerk/KVServer
// triple for its test suite. It additionally records every Clerk call as
// a porcupine.Operation so a scenario can verify linearizability at the
// end of a run.
package harness

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/tamu-distsys-cloud/kvstore/internal/kvmodel"
	"github.com/tamu-distsys-cloud/kvstore/internal/kvsrv"
	"github.com/tamu-distsys-cloud/kvstore/internal/labrpc"
	"github.com/tamu-distsys-cloud/kvstore/internal/porcupine"
)

func randString(n int) string {
	b := make([]byte, 2*n)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)[:n]
}

// makeSeed returns a random 62-bit value, used by scenarios that need a
// reproducible-looking but unpredictable seed for key/value generation.
func makeSeed() int64 {
	max := big.NewInt(int64(1) << 62)
	n, _ := rand.Int(rand.Reader, max)
	return n.Int64()
}

// Config owns a cluster of shard servers sharing one in-memory network,
// and every Clerk connected to it.
type Config struct {
	mu sync.Mutex

	net            *labrpc.Network
	nServers       int
	nReplicas      int // recorded for parity with the source's replication factor; unused (no replication in this core)
	kvServers      []*kvsrv.KVServer
	runningServers map[int]bool
	clerkEnds      map[*kvsrv.Clerk][]string

	start time.Time
	t0    time.Time
	rpcs0 int64
	ops   int64

	log *OpLog
}

// OpLog accumulates Operations recorded by Get/Put/Append helpers so a
// scenario can run the porcupine checker over them once it's done.
type OpLog struct {
	mu  sync.Mutex
	ops []porcupine.Operation
}

func NewOpLog() *OpLog { return &OpLog{} }

func (l *OpLog) append(op porcupine.Operation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

// Read returns a snapshot of every operation recorded so far.
func (l *OpLog) Read() []porcupine.Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]porcupine.Operation, len(l.ops))
	copy(out, l.ops)
	return out
}

var epoch = time.Now()

func nowNanos() int64 {
	return int64(time.Since(epoch))
}

func newConfig() *Config {
	return &Config{
		net:            labrpc.MakeNetwork(),
		runningServers: map[int]bool{},
		clerkEnds:      map[*kvsrv.Clerk][]string{},
		start:          time.Now(),
		log:            NewOpLog(),
	}
}

func (cfg *Config) startCluster(nServers int) {
	cfg.nServers = nServers
	cfg.kvServers = make([]*kvsrv.KVServer, nServers)
	for id := 0; id < nServers; id++ {
		kv := kvsrv.NewKVServer(id, nServers)
		cfg.kvServers[id] = kv
		server := labrpc.MakeServer()
		server.AddService(labrpc.MakeService(kv))
		cfg.net.AddServer(serverName(id), server)
		cfg.runningServers[id] = true
	}
}

func serverName(id int) string {
	return fmt.Sprintf("shard-%d", id)
}

// MakeSingleConfig builds a one-shard cluster, matching
// original_source/config.py's make_single_config.
func MakeSingleConfig(unreliable bool) *Config {
	cfg := newConfig()
	cfg.startCluster(1)
	cfg.nReplicas = 1
	cfg.net.Reliable(!unreliable)
	return cfg
}

// MakeShardConfig builds an nShards-way sharded cluster. nReplicas is
// recorded but never consulted: this core has no replication — single
// owner per shard, no consensus.
func MakeShardConfig(nShards, nReplicas int, unreliable bool) *Config {
	cfg := newConfig()
	cfg.startCluster(nShards)
	cfg.nReplicas = nReplicas
	cfg.net.Reliable(!unreliable)
	return cfg
}

// Cleanup tears down the underlying network.
func (cfg *Config) Cleanup() {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	cfg.net.Cleanup()
}

// MakeClient builds a Clerk with one endpoint per shard, connected
// according to which servers are currently running.
func (cfg *Config) MakeClient() *kvsrv.Clerk {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	endNames := make([]string, cfg.nServers)
	ends := make([]*labrpc.ClientEnd, cfg.nServers)
	for id := 0; id < cfg.nServers; id++ {
		endNames[id] = randString(20)
		ends[id] = cfg.net.MakeEnd(endNames[id])
		cfg.net.Connect(endNames[id], serverName(id))
	}
	ck := kvsrv.MakeClerk(ends)
	cfg.clerkEnds[ck] = endNames
	cfg.connectClientLocked(ck)
	return ck
}

// MakeClientToShard builds a Clerk whose only endpoint reaches shard id,
// used to reproduce a client misconfigured with a stale or undersized
// routing table: every request it sends carries
// shard_of(key, 1) == 0 and lands on server id regardless of which shard
// actually owns the key, so server id's own ownership check is what
// rejects the misrouted ones.
func (cfg *Config) MakeClientToShard(id int) *kvsrv.Clerk {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	endName := randString(20)
	end := cfg.net.MakeEnd(endName)
	cfg.net.Connect(endName, serverName(id))
	cfg.net.Enable(endName, cfg.runningServers[id])
	ck := kvsrv.MakeClerk([]*labrpc.ClientEnd{end})
	cfg.clerkEnds[ck] = []string{endName}
	return ck
}

// DeleteClient disconnects and forgets a Clerk's endpoints.
func (cfg *Config) DeleteClient(ck *kvsrv.Clerk) {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	for _, name := range cfg.clerkEnds[ck] {
		cfg.net.DeleteEnd(name)
	}
	delete(cfg.clerkEnds, ck)
}

func (cfg *Config) connectClientLocked(ck *kvsrv.Clerk) {
	endNames := cfg.clerkEnds[ck]
	for id := 0; id < cfg.nServers; id++ {
		cfg.net.Enable(endNames[id], cfg.runningServers[id])
	}
}

// ConnectClient re-enables a Clerk's endpoints to match the servers
// currently running — used after StartServer brings a shard back.
func (cfg *Config) ConnectClient(ck *kvsrv.Clerk) {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	cfg.connectClientLocked(ck)
}

// StopServer takes a shard offline: every connected Clerk's endpoint to
// it is disabled, so calls routed there behave like a dead server.
func (cfg *Config) StopServer(id int) {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	if !cfg.runningServers[id] {
		return
	}
	for _, endNames := range cfg.clerkEnds {
		if id < len(endNames) {
			cfg.net.Enable(endNames[id], false)
		}
	}
	delete(cfg.runningServers, id)
}

// StartServer brings a previously stopped shard back online.
func (cfg *Config) StartServer(id int) {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	if cfg.runningServers[id] {
		return
	}
	for _, endNames := range cfg.clerkEnds {
		if id < len(endNames) {
			cfg.net.Enable(endNames[id], true)
		}
	}
	cfg.runningServers[id] = true
}

// Begin marks the start of a scenario, for the rpc/op counters End reports.
func (cfg *Config) Begin(description string) {
	cfg.t0 = time.Now()
	cfg.rpcs0 = cfg.net.GetTotalCount()
	cfg.mu.Lock()
	cfg.ops = 0
	cfg.mu.Unlock()
	_ = description
}

// Op records that one more logical operation completed, for End's report.
func (cfg *Config) Op() {
	cfg.mu.Lock()
	cfg.ops++
	cfg.mu.Unlock()
}

// End returns the elapsed time, RPC count, and op count since Begin.
func (cfg *Config) End() (elapsed time.Duration, rpcs int64, ops int64) {
	cfg.mu.Lock()
	ops = cfg.ops
	cfg.mu.Unlock()
	return time.Since(cfg.t0), cfg.net.GetTotalCount() - cfg.rpcs0, ops
}

// Log returns the OpLog this Config's Get/Put/Append helpers record into.
func (cfg *Config) Log() *OpLog { return cfg.log }

// Network returns the underlying fabric, for wiring to internal/metrics.
func (cfg *Config) Network() *labrpc.Network { return cfg.net }

// Get performs ck.Get(key), records it, and bumps the op counter.
func (cfg *Config) Get(ck *kvsrv.Clerk, key string, cli int) string {
	start := nowNanos()
	v := ck.Get(key)
	end := nowNanos()
	cfg.Op()
	cfg.log.append(porcupine.Operation{
		ClientID: cli, Input: kvmodel.Input{Op: kvmodel.OpGet, Key: key},
		Output: kvmodel.Output{Value: v}, CallTime: start, ResponseTime: end,
	})
	return v
}

// Put performs ck.Put(key, value) and records it.
func (cfg *Config) Put(ck *kvsrv.Clerk, key, value string, cli int) {
	start := nowNanos()
	ck.Put(key, value)
	end := nowNanos()
	cfg.Op()
	cfg.log.append(porcupine.Operation{
		ClientID: cli, Input: kvmodel.Input{Op: kvmodel.OpPut, Key: key, Value: value},
		Output: kvmodel.Output{}, CallTime: start, ResponseTime: end,
	})
}

// Append performs ck.Append(key, value) and records it as an
// append-with-return so the model checks the returned prior value.
func (cfg *Config) Append(ck *kvsrv.Clerk, key, value string, cli int) string {
	start := nowNanos()
	prev := ck.Append(key, value)
	end := nowNanos()
	cfg.Op()
	cfg.log.append(porcupine.Operation{
		ClientID: cli, Input: kvmodel.Input{Op: kvmodel.OpAppendReturn, Key: key, Value: value},
		Output: kvmodel.Output{Value: prev}, CallTime: start, ResponseTime: end,
	})
	return prev
}
