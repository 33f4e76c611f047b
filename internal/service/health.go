package service

import (
	"context"
)

type HealthRepo interface {
	Ping(ctx context.Context) error
}

type HealthService struct {
	health HealthRepo
}

func NewHealthService(health HealthRepo) *HealthService {
	return &HealthService{
		health: health,
	}
}

func (s *HealthService) IsOK(ctx context.Context) error {
	return s.health.Ping(ctx)
}
