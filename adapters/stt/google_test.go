package stt_test

import (
	"go.uber.org/zap"

	"github.com/swaralabs/swara/adapters/stt"
	"github.com/swaralabs/swara/domain/repositories"
)

var _ repositories.SpeechToText = stt.NewGoogleSpeechToText(zap.NewNop())
