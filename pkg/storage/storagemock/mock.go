package storagemock

import (
	"context"

	"github.com/raterudder/renacsync/pkg/storage"
	"github.com/raterudder/renacsync/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetSettings(ctx context.Context) (types.Settings, int, error) {
	args := m.Called(ctx)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.Settings), args.Int(1), args.Error(2)
	}
	return types.Settings{}, 0, nil
}

func (m *MockDatabase) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	args := m.Called(ctx, settings, version)
	return args.Error(0)
}

func (m *MockDatabase) ObjectExists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockDatabase) CreateObjectIfAbsent(ctx context.Context, id string, meta types.PointMeta) error {
	args := m.Called(ctx, id, meta)
	return args.Error(0)
}

func (m *MockDatabase) ReadState(ctx context.Context, id string) (*types.PointState, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*types.PointState), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) WriteState(ctx context.Context, id string, state types.PointState) error {
	args := m.Called(ctx, id, state)
	return args.Error(0)
}

func (m *MockDatabase) DeleteObject(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDatabase) ListPoints(ctx context.Context, prefix string) ([]types.Point, error) {
	args := m.Called(ctx, prefix)
	if len(args) > 0 {
		if p := args.Get(0); p != nil {
			return p.([]types.Point), args.Error(1)
		}
		return nil, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
