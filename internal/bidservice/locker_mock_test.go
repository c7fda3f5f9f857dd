package bidservice

import (
	"context"
	"reflect"
	"time"

	"github.com/golang/mock/gomock"
)

// MockLocker is a hand-written stand-in for what mockgen would generate
// for lock.Locker, following the teacher's gomock usage in
// biddingService's repository mocks. Used to force apierrors.ErrLockTimeout,
// a path the real in-memory locker only produces after a real timeout wait.
type MockLocker struct {
	ctrl     *gomock.Controller
	recorder *MockLockerMockRecorder
}

type MockLockerMockRecorder struct {
	mock *MockLocker
}

func NewMockLocker(ctrl *gomock.Controller) *MockLocker {
	m := &MockLocker{ctrl: ctrl}
	m.recorder = &MockLockerMockRecorder{m}
	return m
}

func (m *MockLocker) EXPECT() *MockLockerMockRecorder {
	return m.recorder
}

func (m *MockLocker) WithLock(ctx context.Context, key string, acquireTimeout time.Duration, fn func(ctx context.Context) error) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "WithLock", ctx, key, acquireTimeout, fn)
	err, _ := ret[0].(error)
	return err
}

func (mr *MockLockerMockRecorder) WithLock(ctx, key, acquireTimeout, fn any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "WithLock", reflect.TypeOf((*MockLocker)(nil).WithLock), ctx, key, acquireTimeout, fn)
}
