package runner

import (
	"context"

	"github.com/metal-toolbox/osie-runner/internal/model"
	"github.com/metal-toolbox/osie-runner/internal/reconcile"
	mock "github.com/stretchr/testify/mock"
)

type MockSubscriber struct {
	mock.Mock
}

func (m *MockSubscriber) Connect(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).([]byte)

	return b, args.Error(1)
}

func (m *MockSubscriber) Next(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).([]byte)

	return b, args.Error(1)
}

func (m *MockSubscriber) Close() error {
	return m.Called().Error(0)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Wipe(ctx context.Context, ds *model.DesiredState) error {
	return m.Called(ctx, ds).Error(0)
}

func (m *MockReconciler) Handle(ctx context.Context, ds *model.DesiredState) (reconcile.Outcome, error) {
	args := m.Called(ctx, ds)

	return args.Get(0).(reconcile.Outcome), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, event model.Event) {
	m.Called(ctx, event)
}
