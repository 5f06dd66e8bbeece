package labrpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type EchoArgs struct {
	X int
}

type EchoReply struct {
	Y int
}

type EchoServer struct{}

func (e *EchoServer) Double(args *EchoArgs, reply *EchoReply) {
	reply.Y = args.X * 2
}

func setupEcho(t *testing.T) (*Network, *ClientEnd) {
	t.Helper()
	net := MakeNetwork()
	t.Cleanup(net.Cleanup)

	srv := MakeServer()
	srv.AddService(MakeService(&EchoServer{}))
	net.AddServer("s1", srv)

	end := net.MakeEnd("c1")
	net.Connect("c1", "s1")
	net.Enable("c1", true)
	return net, end
}

func TestBasicCallSucceeds(t *testing.T) {
	_, end := setupEcho(t)
	reply := EchoReply{}
	ok := end.Call("EchoServer.Double", &EchoArgs{X: 21}, &reply)
	require.True(t, ok)
	assert.Equal(t, 42, reply.Y)
}

func TestDisabledEndpointFails(t *testing.T) {
	net, end := setupEcho(t)
	net.Enable("c1", false)
	reply := EchoReply{}
	ok := end.Call("EchoServer.Double", &EchoArgs{X: 1}, &reply)
	assert.False(t, ok)
}

func TestDeletedServerFails(t *testing.T) {
	net, end := setupEcho(t)
	net.DeleteServer("s1")
	reply := EchoReply{}
	ok := end.Call("EchoServer.Double", &EchoArgs{X: 1}, &reply)
	assert.False(t, ok)
}

func TestReplacedServerServesNewCalls(t *testing.T) {
	net, end := setupEcho(t)
	newSrv := MakeServer()
	newSrv.AddService(MakeService(&EchoServer{}))
	net.AddServer("s1", newSrv)
	reply := EchoReply{}
	ok := end.Call("EchoServer.Double", &EchoArgs{X: 5}, &reply)
	assert.True(t, ok, "a fresh registration at the same id should still serve")
	assert.Equal(t, 10, reply.Y)
}

func TestUnreliableEventuallyDropsSomeRequests(t *testing.T) {
	net, end := setupEcho(t)
	net.Reliable(false)

	failures := 0
	for i := 0; i < 200; i++ {
		reply := EchoReply{}
		if !end.Call("EchoServer.Double", &EchoArgs{X: i}, &reply) {
			failures++
		}
	}
	assert.Greater(t, failures, 0, "unreliable network should drop at least one of 200 calls")
}

func TestCountersTrackCallVolume(t *testing.T) {
	net, end := setupEcho(t)
	for i := 0; i < 5; i++ {
		reply := EchoReply{}
		end.Call("EchoServer.Double", &EchoArgs{X: i}, &reply)
	}
	assert.Equal(t, 5, net.GetCount("s1"))
	assert.EqualValues(t, 5, net.GetTotalCount())
	assert.Greater(t, net.GetTotalBytes(), int64(0))
}

func TestMakeEndRegistersEndpoint(t *testing.T) {
	// Duplicate-name detection calls log.Fatal and cannot be exercised by
	// an in-process unit test without killing the test binary.
	net := MakeNetwork()
	t.Cleanup(net.Cleanup)
	end := net.MakeEnd("dup")
	assert.NotNil(t, end)
}

func TestMissingServerFailsQuicklyWithoutLongDelays(t *testing.T) {
	net := MakeNetwork()
	t.Cleanup(net.Cleanup)
	net.LongDelays(false)
	end := net.MakeEnd("c1")
	net.Connect("c1", "nowhere")
	net.Enable("c1", true)

	start := time.Now()
	reply := EchoReply{}
	ok := end.Call("EchoServer.Double", &EchoArgs{X: 1}, &reply)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
