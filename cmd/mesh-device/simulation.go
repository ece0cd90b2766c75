package main

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/mash-protocol/meshmodel/pkg/sensor"
	"github.com/mash-protocol/meshmodel/pkg/timer"
)

// Board simulation bounds.
const (
	simMinTemperature = 15
	simMaxTemperature = 30
	simMaxBrightness  = 100
	simBatteryEvery   = 12
)

// simulator moves the board readings on every tick.
type simulator struct {
	board  *sensor.Board
	rnd    *rand.Rand
	logger *slog.Logger
	timer  timer.Periodic
	ticks  uint64
}

func newSimulator(board *sensor.Board, rnd *rand.Rand, logger *slog.Logger) *simulator {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &simulator{board: board, rnd: rnd, logger: logger}
}

func (s *simulator) Start(interval time.Duration) error {
	if err := s.timer.Start(interval, s.tick); err != nil {
		return err
	}
	s.logger.Info("simulation started", "interval", interval)
	return nil
}

func (s *simulator) Stop() {
	if s.timer.Running() {
		s.timer.Stop()
		s.logger.Info("simulation stopped")
	}
}

func (s *simulator) Running() bool {
	return s.timer.Running()
}

func (s *simulator) tick() {
	s.ticks++
	n := s.ticks
	s.board.Update(func(st *sensor.BoardState) {
		st.Counter1++
		st.Counter2 += 2

		st.Temperature += int16(s.rnd.IntN(3) - 1)
		st.Temperature = min(max(st.Temperature, simMinTemperature), simMaxTemperature)

		b := int(st.Brightness) + s.rnd.IntN(11) - 5
		st.Brightness = uint16(min(max(b, 0), simMaxBrightness))

		st.LEDs = [4]bool{}
		st.LEDs[n%4] = true
		st.Buttons[0] = n%7 == 0

		st.Accel.X = jitter(s.rnd, st.Accel.X)
		st.Accel.Y = jitter(s.rnd, st.Accel.Y)
		st.Accel.Z = jitter(s.rnd, st.Accel.Z)

		if n%simBatteryEvery == 0 && st.Battery > 0 {
			st.Battery--
		}
	})
	s.logger.Debug("board updated", "tick", n)
}

func jitter(rnd *rand.Rand, v float32) float32 {
	v += (rnd.Float32() - 0.5) / 10
	return min(max(v, -1), 1)
}
