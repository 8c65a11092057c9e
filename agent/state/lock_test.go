package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	t.Parallel()

	locks := NewKeyedMutex()
	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(context.Background(), "chat_history_u1")
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			_ = unlock(context.Background())
		}()
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Fatalf("max holders = %d, want 1", maxSeen.Load())
	}
	if locks.Len() != 0 {
		t.Fatalf("Len() = %d after all unlocks, want 0", locks.Len())
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	t.Parallel()

	locks := NewKeyedMutex()
	unlockA, err := locks.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock(a) error = %v", err)
	}
	defer unlockA(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locks.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Lock(b) blocked by a: %v", err)
	}
	_ = unlockB(context.Background())
	_ = unlockB(context.Background())

	if locks.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", locks.Len())
	}
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	t.Parallel()

	locks := NewKeyedMutex()
	unlock, err := locks.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locks.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Lock() error = %v, want DeadlineExceeded", err)
	}

	_ = unlock(context.Background())
	if locks.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", locks.Len())
	}
}

// fakeRedis implements the subset of Redis used by RedisLocker, including
// PX expiry.
type fakeRedis struct {
	mu      sync.Mutex
	keys    map[string]string
	expires map[string]time.Time
	sets    int
	extends int
}

func (f *fakeRedis) live(key string) bool {
	if _, ok := f.keys[key]; !ok {
		return false
	}
	if exp, ok := f.expires[key]; ok && !time.Now().Before(exp) {
		delete(f.keys, key)
		delete(f.expires, key)
		return false
	}
	return true
}

func (f *fakeRedis) setExpiry(key string, ms any) {
	if f.expires == nil {
		f.expires = map[string]time.Time{}
	}
	if v, ok := ms.(float64); ok {
		f.expires[key] = time.Now().Add(time.Duration(v) * time.Millisecond)
	}
}

func (f *fakeRedis) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var cmd []any
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch cmd[0] {
	case "SET":
		f.sets++
		key, val := cmd[1].(string), cmd[2].(string)
		if f.live(key) {
			fmt.Fprint(w, `{"result":null}`)
			return
		}
		f.keys[key] = val
		if len(cmd) > 5 {
			f.setExpiry(key, cmd[5])
		}
		fmt.Fprint(w, `{"result":"OK"}`)
	case "EVAL":
		script, key, token := cmd[1].(string), cmd[3].(string), cmd[4].(string)
		if !f.live(key) || f.keys[key] != token {
			fmt.Fprint(w, `{"result":0}`)
			return
		}
		switch script {
		case compareAndDelete:
			delete(f.keys, key)
			delete(f.expires, key)
		case compareAndExtend:
			f.extends++
			f.setExpiry(key, cmd[5])
		}
		fmt.Fprint(w, `{"result":1}`)
	default:
		fmt.Fprintf(w, `{"error":"unsupported %v"}`, cmd[0])
	}
}

func newTestRedisLocker(t *testing.T, fake *fakeRedis) *RedisLocker {
	t.Helper()
	return newTestRedisLockerTTL(t, fake, time.Minute)
}

func newTestRedisLockerTTL(t *testing.T, fake *fakeRedis, ttl time.Duration) *RedisLocker {
	t.Helper()

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return &RedisLocker{
		rest:   &upstashREST{baseURL: server.URL, token: "token", httpClient: server.Client()},
		prefix: "lock:",
		ttl:    ttl,
	}
}

func TestRedisLockerExclusive(t *testing.T) {
	t.Parallel()

	fake := &fakeRedis{keys: map[string]string{}}
	locker := newTestRedisLocker(t, fake)

	unlock, err := locker.Lock(context.Background(), "chat_history_u1")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "chat_history_u1"); !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("second Lock() error = %v, want ErrLockNotAcquired", err)
	}

	if err := unlock(context.Background()); err != nil {
		t.Fatalf("unlock error = %v", err)
	}
	fake.mu.Lock()
	remaining := len(fake.keys)
	fake.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("lock key not deleted, %d keys left", remaining)
	}

	unlock2, err := locker.Lock(context.Background(), "chat_history_u1")
	if err != nil {
		t.Fatalf("Lock() after release error = %v", err)
	}
	_ = unlock2(context.Background())
}

func TestRedisLockerDoesNotDeleteForeignLock(t *testing.T) {
	t.Parallel()

	fake := &fakeRedis{keys: map[string]string{}}
	locker := newTestRedisLocker(t, fake)

	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	// Simulate expiry and takeover by another process.
	fake.mu.Lock()
	fake.keys["lock:k"] = "someone-else"
	fake.mu.Unlock()

	_ = unlock(context.Background())
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.keys["lock:k"] != "someone-else" {
		t.Fatal("unlock removed a lock it no longer owns")
	}
}

func TestRedisLockerRenewsLeaseWhileHeld(t *testing.T) {
	t.Parallel()

	fake := &fakeRedis{keys: map[string]string{}}
	locker := newTestRedisLockerTTL(t, fake, 90*time.Millisecond)

	unlock, err := locker.Lock(context.Background(), "chat_history_u1")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	// Hold for several lease lengths.
	time.Sleep(400 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "chat_history_u1"); !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("second Lock() past the ttl error = %v, want ErrLockNotAcquired", err)
	}

	if err := unlock(context.Background()); err != nil {
		t.Fatalf("unlock error = %v", err)
	}
	fake.mu.Lock()
	extends, remaining := fake.extends, len(fake.keys)
	fake.mu.Unlock()
	if extends == 0 {
		t.Fatal("lease was never extended")
	}
	if remaining != 0 {
		t.Fatalf("lock key not deleted, %d keys left", remaining)
	}
}

func TestRedisLockerStopsRenewingAfterUnlock(t *testing.T) {
	t.Parallel()

	fake := &fakeRedis{keys: map[string]string{}}
	locker := newTestRedisLockerTTL(t, fake, 60*time.Millisecond)

	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := unlock(context.Background()); err != nil {
		t.Fatalf("unlock error = %v", err)
	}
	fake.mu.Lock()
	before := fake.extends
	fake.mu.Unlock()

	time.Sleep(150 * time.Millisecond)
	fake.mu.Lock()
	after := fake.extends
	fake.mu.Unlock()
	if after != before {
		t.Fatalf("extends went from %d to %d after unlock", before, after)
	}
}
