// Package labrpc implements the simulated RPC fabric: a deterministic,
// controllably-unreliable in-process network multiplexing client
// endpoints to server dispatchers. It is the Go counterpart of
// original_source/labrpc/labrpc.py, generalized so that dynamic argument
// typing is replaced by a one-time-built registry of named handlers (see
// Service/MakeService) instead of per-call reflection on free-form
// payloads, and every reply is delivered through a single-use channel
// guaranteeing exactly-once delivery.
package labrpc

import (
	"bytes"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tamu-distsys-cloud/kvstore/internal/labgob"
	"github.com/tamu-distsys-cloud/kvstore/internal/logx"
)

var log = logx.Named("labrpc")

// ReplyMsg is the sole value ever written to a request's reply channel.
type ReplyMsg struct {
	OK    bool
	Reply []byte
}

type reqMsg struct {
	endName string
	svcMeth string
	args    []byte
	replyCh chan ReplyMsg
}

// ClientEnd is a named handle owned by exactly one client session.
type ClientEnd struct {
	name string
	net  *Network
}

// Call encodes args, posts a request on the fabric, and blocks for the
// reply. It returns false on any transport failure (drop, disabled
// endpoint, missing/replaced server) — the caller never learns why.
func (e *ClientEnd) Call(svcMeth string, args interface{}, reply interface{}) bool {
	var ab bytes.Buffer
	if err := labgob.NewEncoder(&ab).Encode(args); err != nil {
		log.Fatal().Err(err).Str("method", svcMeth).Msg("failed to encode RPC args")
	}

	req := reqMsg{
		endName: e.name,
		svcMeth: svcMeth,
		args:    ab.Bytes(),
		replyCh: make(chan ReplyMsg, 1),
	}

	select {
	case e.net.endCh <- req:
	default:
		return false
	}

	rep := <-req.replyCh
	if !rep.OK {
		return false
	}
	if err := labgob.NewDecoder(bytes.NewReader(rep.Reply)).Decode(reply); err != nil {
		log.Fatal().Err(err).Str("method", svcMeth).Msg("failed to decode RPC reply")
	}
	return true
}

// Network is the central dispatcher: endpoints, server registrations,
// failure-injection knobs, and counters, all guarded by a single mutex
// except while a user handler is actually running.
type Network struct {
	mu             sync.Mutex
	reliable       bool
	longDelays     bool
	longReordering bool
	ends           map[string]*ClientEnd
	enabled        map[string]bool
	connections    map[string]string  // endpoint name -> server id
	servers        map[string]*Server // server id -> instance

	endCh chan reqMsg
	done  chan struct{}

	totalCount int64 // atomic
	totalBytes int64 // atomic
}

// MakeNetwork constructs a Network and starts its single ingress
// dispatcher goroutine.
func MakeNetwork() *Network {
	n := &Network{
		reliable:    true,
		ends:        map[string]*ClientEnd{},
		enabled:     map[string]bool{},
		connections: map[string]string{},
		servers:     map[string]*Server{},
		endCh:       make(chan reqMsg),
		done:        make(chan struct{}),
	}
	go n.processRequests()
	return n
}

// Cleanup tears the fabric down; any further post attempts fail rather
// than block.
func (n *Network) Cleanup() {
	close(n.done)
}

func (n *Network) Reliable(yes bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reliable = yes
}

func (n *Network) LongReordering(yes bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.longReordering = yes
}

func (n *Network) LongDelays(yes bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.longDelays = yes
}

func (n *Network) processRequests() {
	for {
		select {
		case <-n.done:
			return
		case req := <-n.endCh:
			atomic.AddInt64(&n.totalCount, 1)
			atomic.AddInt64(&n.totalBytes, int64(len(req.args)))
			go n.processReq(req)
		}
	}
}

type endSnapshot struct {
	enabled        bool
	serverName     string
	server         *Server
	reliable       bool
	longReordering bool
}

func (n *Network) readEndInfo(endName string) endSnapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	serverName := n.connections[endName]
	return endSnapshot{
		enabled:        n.enabled[endName],
		serverName:     serverName,
		server:         n.servers[serverName],
		reliable:       n.reliable,
		longReordering: n.longReordering,
	}
}

func (n *Network) isServerDead(endName, serverName string, server *Server) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.enabled[endName] || n.servers[serverName] != server
}

func (n *Network) processReq(req reqMsg) {
	snap := n.readEndInfo(req.endName)

	if snap.enabled && snap.serverName != "" && snap.server != nil {
		if !snap.reliable {
			time.Sleep(time.Duration(rand.Intn(28)) * time.Millisecond)
		}
		if !snap.reliable && rand.Intn(1000) < 100 {
			req.replyCh <- ReplyMsg{OK: false}
			return
		}

		ech := make(chan ReplyMsg, 1)
		go func() {
			ok, rb := snap.server.dispatch(req.svcMeth, req.args)
			ech <- ReplyMsg{OK: ok, Reply: rb}
		}()

		var reply ReplyMsg
		replyOK := false
		serverDead := false
		for !replyOK && !serverDead {
			select {
			case reply = <-ech:
				replyOK = true
			case <-time.After(100 * time.Millisecond):
				serverDead = n.isServerDead(req.endName, snap.serverName, snap.server)
			}
		}

		switch {
		case !replyOK || serverDead:
			req.replyCh <- ReplyMsg{OK: false}
		case !snap.reliable && rand.Intn(1000) < 100:
			req.replyCh <- ReplyMsg{OK: false}
		case snap.longReordering && rand.Intn(900) < 600:
			ms := 200 + rand.Intn(2000)
			time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
				req.replyCh <- reply
			})
		default:
			req.replyCh <- reply
		}
		return
	}

	n.mu.Lock()
	longDelays := n.longDelays
	n.mu.Unlock()

	var ms int
	if longDelays {
		ms = rand.Intn(7001)
	} else {
		ms = rand.Intn(101)
	}
	time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
		req.replyCh <- ReplyMsg{OK: false}
	})
}

// MakeEnd creates a new endpoint. Fatal if the name already exists.
func (n *Network) MakeEnd(name string) *ClientEnd {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.ends[name]; ok {
		log.Fatal().Str("end", name).Msg("MakeEnd: endpoint already exists")
	}
	e := &ClientEnd{name: name, net: n}
	n.ends[name] = e
	n.enabled[name] = false
	n.connections[name] = ""
	return e
}

// DeleteEnd destroys an endpoint; idempotent from the caller's perspective
// in that any future traffic on it simply fails.
func (n *Network) DeleteEnd(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.ends, name)
	delete(n.enabled, name)
	delete(n.connections, name)
}

// AddServer registers (or replaces) the server instance for id. Replacing
// an id causes in-flight calls targeting the old instance to observe
// isServerDead and fail, since the dispatcher compares pointer identity.
func (n *Network) AddServer(id string, server *Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.servers[id] = server
}

// DeleteServer unregisters id; in-flight calls against it will fail.
func (n *Network) DeleteServer(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.servers[id] = nil
}

// Connect sets an endpoint's routing target. May be called while disabled.
func (n *Network) Connect(endName, serverID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connections[endName] = serverID
}

// Enable toggles delivery for an endpoint.
func (n *Network) Enable(endName string, enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled[endName] = enabled
}

// GetCount returns the dispatch count of the server currently registered
// at id, or 0 if none is registered.
func (n *Network) GetCount(id string) int {
	n.mu.Lock()
	server := n.servers[id]
	n.mu.Unlock()
	if server == nil {
		return 0
	}
	return server.getCount()
}

func (n *Network) GetTotalCount() int64 {
	return atomic.LoadInt64(&n.totalCount)
}

func (n *Network) GetTotalBytes() int64 {
	return atomic.LoadInt64(&n.totalBytes)
}

// Server hosts a set of named services and counts dispatched requests.
type Server struct {
	mu       sync.Mutex
	services map[string]*Service
	count    int64
}

func MakeServer() *Server {
	return &Server{services: map[string]*Service{}}
}

func (s *Server) AddService(svc *Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.name] = svc
}

func (s *Server) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.count)
}

// dispatch splits "Service.Method", looks the service up, and forwards.
// Unknown service is a fatal configuration error, not a
// runtime failure.
func (s *Server) dispatch(svcMeth string, args []byte) (bool, []byte) {
	s.mu.Lock()
	s.count++
	dot := strings.LastIndexByte(svcMeth, '.')
	if dot < 0 {
		s.mu.Unlock()
		log.Fatal().Str("method", svcMeth).Msg("labrpc: malformed method name, expected Service.Method")
	}
	serviceName := svcMeth[:dot]
	methodName := svcMeth[dot+1:]
	svc, ok := s.services[serviceName]
	s.mu.Unlock()

	if !ok {
		choices := make([]string, 0, len(s.services))
		for name := range s.services {
			choices = append(choices, name)
		}
		log.Fatal().Str("service", serviceName).Strs("known", choices).Msg("labrpc: unknown service")
		return false, nil
	}
	return svc.dispatch(methodName, args)
}

// Service is the built-once registry of a receiver's exported RPC
// methods, each with its decoded argument type and reply type recorded
// at construction time, in place of the original's per-call reflection.
type Service struct {
	name    string
	rcvr    reflect.Value
	typ     reflect.Type
	methods map[string]reflect.Method
}

// MakeService builds a Service from rcvr. Every exported method with
// signature func(args *ArgsT, reply *ReplyT) is registered under its name.
func MakeService(rcvr interface{}) *Service {
	typ := reflect.TypeOf(rcvr)
	svc := &Service{
		name:    reflect.Indirect(reflect.ValueOf(rcvr)).Type().Name(),
		rcvr:    reflect.ValueOf(rcvr),
		typ:     typ,
		methods: map[string]reflect.Method{},
	}
	for m := 0; m < typ.NumMethod(); m++ {
		method := typ.Method(m)
		mtype := method.Type
		if method.PkgPath != "" {
			continue // not exported
		}
		if mtype.NumIn() != 3 {
			continue
		}
		if mtype.In(2).Kind() != reflect.Ptr {
			continue
		}
		svc.methods[method.Name] = method
	}
	return svc
}

func (svc *Service) dispatch(methodName string, argBytes []byte) (ok bool, rb []byte) {
	method, known := svc.methods[methodName]
	if !known {
		choices := make([]string, 0, len(svc.methods))
		for name := range svc.methods {
			choices = append(choices, name)
		}
		log.Fatal().Str("service", svc.name).Str("method", methodName).Strs("known", choices).
			Msg("labrpc: unknown method")
		return false, nil
	}

	// A panic inside the handler must not take down the dispatcher
	// goroutine driving every other in-flight call; convert it to an
	// ordinary transport failure instead.
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("service", svc.name).Str("method", methodName).
				Msg("labrpc: recovered handler panic")
			ok = false
			rb = nil
		}
	}()

	mtype := method.Type
	argType := mtype.In(1)

	var argv reflect.Value
	argIsPointer := argType.Kind() == reflect.Ptr
	if argIsPointer {
		argv = reflect.New(argType.Elem())
	} else {
		argv = reflect.New(argType)
	}
	if err := labgob.NewDecoder(bytes.NewReader(argBytes)).Decode(argv.Interface()); err != nil {
		log.Fatal().Err(err).Str("method", methodName).Msg("labrpc: failed to decode args")
	}

	replyType := mtype.In(2).Elem()
	replyv := reflect.New(replyType)

	var in []reflect.Value
	if argIsPointer {
		in = []reflect.Value{svc.rcvr, argv, replyv}
	} else {
		in = []reflect.Value{svc.rcvr, argv.Elem(), replyv}
	}
	method.Func.Call(in)

	var buf bytes.Buffer
	if err := labgob.NewEncoder(&buf).Encode(replyv.Interface()); err != nil {
		log.Fatal().Err(err).Str("method", methodName).Msg("labrpc: failed to encode reply")
	}
	return true, buf.Bytes()
}
