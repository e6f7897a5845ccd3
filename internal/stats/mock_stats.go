package stats

import "github.com/stretchr/testify/mock"

type MockStatsUpdater struct {
	mock.Mock
}

// ExpectRegistered sets up the RegisterMetric calls a component makes when
// it is constructed.
func (m *MockStatsUpdater) ExpectRegistered(names ...string) *MockStatsUpdater {
	for _, name := range names {
		m.On("RegisterMetric", name).Return().Once()
	}
	return m
}

func (m *MockStatsUpdater) Incr(name string) {
	m.Called(name)
}
func (m *MockStatsUpdater) Decr(name string) {
	m.Called(name)
}
func (m *MockStatsUpdater) RegisterMetric(name string) {
	m.Called(name)
}
func (m *MockStatsUpdater) Run() {
	m.Called()
}
