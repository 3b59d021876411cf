package game

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l1jgo/hub/internal/format"
	"github.com/l1jgo/hub/internal/model"
)

type fakeHost struct {
	mu       sync.Mutex
	toPlayer []string
	toChan   []string
}

func (f *fakeHost) DeliverToPlayer(_ [16]byte, rendered string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toPlayer = append(f.toPlayer, rendered)
	return nil
}
func (f *fakeHost) DeliverToChannel(_ string, rendered string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toChan = append(f.toChan, rendered)
	return nil
}
func (f *fakeHost) RankOf([16]byte) model.RankCoordinate { return model.RankCoordinate{} }

func (f *fakeHost) countToPlayer() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.toPlayer)
}

func TestAdapter_DeliverRendersAndSendsToChannel(t *testing.T) {
	host := &fakeHost{}
	a := New(host, format.New(format.Table{}, format.GameRenderer{}), zap.NewNop())

	err := a.Deliver(model.ChatMessage{SourceChannel: "global", AuthorPlatformID: "ext1", CanonicalText: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ext1: hi"}, host.toChan)
}

func TestAdapter_SendToPlayerCoalescesAdjacentDuplicates(t *testing.T) {
	host := &fakeHost{}
	a := New(host, format.New(format.Table{}, format.GameRenderer{}), zap.NewNop())
	id := [16]byte{7}

	for i := 0; i < 5; i++ {
		a.SendToPlayer(id, "same message")
	}

	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, host.countToPlayer(), 5)
	assert.GreaterOrEqual(t, host.countToPlayer(), 1)
}

func TestAdapter_SendAfterDropPlayerUsesFreshQueue(t *testing.T) {
	host := &fakeHost{}
	a := New(host, format.New(format.Table{}, format.GameRenderer{}), zap.NewNop())
	id := [16]byte{8}

	a.SendToPlayer(id, "hello")
	time.Sleep(10 * time.Millisecond)
	a.DropPlayer(id)

	before := host.countToPlayer()
	a.SendToPlayer(id, "after drop") // creates a fresh queue; does not panic
	time.Sleep(10 * time.Millisecond)
	assert.GreaterOrEqual(t, host.countToPlayer(), before)
}

func TestAdapter_IngestFromHostInvokesRegisteredCallback(t *testing.T) {
	host := &fakeHost{}
	a := New(host, format.New(format.Table{}, format.GameRenderer{}), zap.NewNop())

	var received model.ChatMessage
	done := make(chan struct{})
	a.SubscribeInbound(func(msg model.ChatMessage) {
		received = msg
		close(done)
	})

	a.IngestFromHost(model.ChatMessage{RawText: "hello world"})
	<-done
	assert.Equal(t, "hello world", received.RawText)
}
