package service

import (
	"context"
	"time"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/model"
	"admin-auth-service/internal/util"
)

// Reaper periodically deletes expired verification requests. Expiry is
// enforced at read time regardless; the reaper only keeps the table from
// accumulating dead rows.
type Reaper struct {
	requests model.OtpRequestStore
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewReaper(requests model.OtpRequestStore, cfg *config.Config) *Reaper {
	return &Reaper{
		requests: requests,
		interval: cfg.Auth.ReaperInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Call Stop to shut it down.
func (r *Reaper) Start() {
	go r.run()
	util.Info("Verification request reaper started", util.Duration("interval", r.interval))
}

func (r *Reaper) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reaper) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stop:
			return
		}
	}
}

func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := r.requests.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		util.Error("Reaper sweep failed", util.ErrorField(err))
		return
	}
	if deleted > 0 {
		util.Info("Reaper sweep complete", util.Int("deleted", deleted))
	}
}
