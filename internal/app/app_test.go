package app

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/therapy-booking/internal/booking"
	"github.com/hackgods/therapy-booking/internal/config"
)

func TestNewWithMemoryStore(t *testing.T) {
	cfg := config.Config{
		StoreDriver:       config.StoreDriverMemory,
		Location:          time.UTC,
		SchedulerInterval: time.Minute,
		FollowupInterval:  time.Hour,
		BrandName:         "Therapy Booking",
	}

	a, err := New(context.Background(), cfg, zerolog.Nop(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &booking.MemoryRepository{}, a.Repo)
	assert.Empty(t, a.Dependencies)
	assert.NotNil(t, a.Service)
	assert.NotNil(t, a.Scheduler)

	require.NoError(t, a.Scheduler.RunOnce(context.Background()))
	a.Dispatcher.Wait()
}
