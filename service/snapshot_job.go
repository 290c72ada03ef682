package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"freyr/snapshot"
)

// StartSnapshotJob periodically persists the full state and truncates
// the command log behind it.
func (s *ExchangeService) StartSnapshotJob(ctx context.Context, interval time.Duration) {
	w := &snapshot.Writer{Dir: s.cfg.SnapshotDir}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := s.snapshotOnce(w); err != nil {
					s.log.Warn("snapshot", zap.Error(err))
				}
			}
		}
	}()
}

func (s *ExchangeService) snapshotOnce(w *snapshot.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.seq
	if err := w.Write(seq, s.eventSeq, s.eng, s.led); err != nil {
		return err
	}
	return s.cmd.TruncateBefore(seq)
}
