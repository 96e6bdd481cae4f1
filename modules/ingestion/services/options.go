package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrInvalidConfig = errors.New("invalid ingestion configuration")

func invalidConfig(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidConfig}, args...)...)
}

func logrusNop() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// DocumentResourceType is the resourceType of the per-run import document.
const DocumentResourceType = "document"

// RelatedToLabel links every ingested entity to the import document.
const RelatedToLabel = "isRelatedTo"

type Options struct {
	// Workers bounds how many rules are parsed concurrently.
	Workers       int
	RunTimeout    time.Duration
	ProgressEvery int
	MaxWarnings   int
	ActorID       string

	// FailMessageMaxLen caps the stored failure message in bytes.
	FailMessageMaxLen int

	Logger *logrus.Entry
	Now    func() time.Time
}

func (o *Options) setDefaults() {
	if o.Workers == 0 {
		o.Workers = 4
	}
	if o.RunTimeout == 0 {
		o.RunTimeout = 2 * time.Hour
	}
	if o.ProgressEvery == 0 {
		o.ProgressEvery = 100
	}
	if o.MaxWarnings == 0 {
		o.MaxWarnings = 50
	}
	if o.ActorID == "" {
		o.ActorID = "importer"
	}
	if o.FailMessageMaxLen == 0 {
		o.FailMessageMaxLen = 2048
	}
	if o.Logger == nil {
		o.Logger = logrusNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type WatchdogOptions struct {
	Interval   time.Duration
	StaleAfter time.Duration

	Logger *logrus.Entry
	Now    func() time.Time
}

func (o *WatchdogOptions) setDefaults() {
	if o.Interval == 0 {
		o.Interval = time.Minute
	}
	if o.StaleAfter == 0 {
		o.StaleAfter = 3 * time.Hour
	}
	if o.Logger == nil {
		o.Logger = logrusNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
