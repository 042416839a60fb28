// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sentry

import (
	"fmt"

	sentrygo "github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// IssueType classifies a report. Warnings and errors are logged and
// forwarded; fatal additionally flushes before the caller exits.
type IssueType string

const (
	IssueTypeWarning IssueType = "warning"
	IssueTypeError   IssueType = "error"
	IssueTypeFatal   IssueType = "fatal"
)

// ReportIssue logs the error and forwards it to Sentry if a DSN is
// configured.
func ReportIssue(err error, issueType IssueType, log *zap.SugaredLogger) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	switch issueType {
	case IssueTypeFatal:
		log.Errorf("FATAL: %v", err)
		capture(sentrygo.LevelFatal, err)
	case IssueTypeError:
		log.Errorf("%v", err)
		capture(sentrygo.LevelError, err)
	case IssueTypeWarning:
		log.Warnf("%v", err)
		capture(sentrygo.LevelWarning, err)
	}
}

// ReportIssuef is the formatting variant of ReportIssue.
func ReportIssuef(issueType IssueType, log *zap.SugaredLogger, template string, args ...interface{}) {
	ReportIssue(fmt.Errorf(template, args...), issueType, log)
}

func capture(level sentrygo.Level, err error) {
	if !enabled {
		return
	}

	sentrygo.CaptureEvent(newEvent(level, err))
}
