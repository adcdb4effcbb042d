package core

import "deident/pkg/domain"

type (
	Transformation  = domain.Transformation
	PrivacyConfig   = domain.PrivacyConfig
	RunResult       = domain.RunResult
	RunRecord       = domain.RunRecord
	RunStore        = domain.RunStore
	Logger          = domain.Logger
	MetricsRecorder = domain.MetricsRecorder
)
