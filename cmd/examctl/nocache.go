package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
)

// noCache is an ExamCache that never hits.
type noCache struct{}

func (noCache) Get(context.Context, uuid.UUID) (*model.Exam, error) { return nil, nil }
func (noCache) Set(context.Context, *model.Exam) error              { return nil }
func (noCache) Delete(context.Context, uuid.UUID) error             { return nil }
