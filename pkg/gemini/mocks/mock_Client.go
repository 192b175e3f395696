// Package mocks provides test doubles for the gemini client.
package mocks

import (
	"context"

	gemini "github.com/sells-group/market-intel/pkg/gemini"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// GenerateContent provides a mock function with given fields: ctx, model, req
func (_m *MockClient) GenerateContent(ctx context.Context, model string, req *gemini.GenerateContentRequest) (*gemini.GenerateContentResponse, error) {
	ret := _m.Called(ctx, model, req)

	if len(ret) == 0 {
		panic("no return value specified for GenerateContent")
	}

	var r0 *gemini.GenerateContentResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, *gemini.GenerateContentRequest) (*gemini.GenerateContentResponse, error)); ok {
		return rf(ctx, model, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, *gemini.GenerateContentRequest) *gemini.GenerateContentResponse); ok {
		r0 = rf(ctx, model, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*gemini.GenerateContentResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, *gemini.GenerateContentRequest) error); ok {
		r1 = rf(ctx, model, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
