// Package model defines the core data types shared across agstage.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RiskLevel categorizes how suspicious a proposal looks.
type RiskLevel int

const (
	RiskInfo RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r RiskLevel) String() string {
	switch r {
	case RiskInfo:
		return "info"
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText encodes the level by name.
func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ChangeProposal is a requested full-content replacement for a file.
type ChangeProposal struct {
	TargetPath string
	Content    string
}

// StagedChange is a proposal persisted to its staging artifact.
type StagedChange struct {
	TargetPath  string
	StagingPath string
	CreatedAt   time.Time
}

// SessionState is a review session's position in its lifecycle.
type SessionState int

const (
	StateStaged SessionState = iota
	StatePresented
	StateAccepted
	StateRejected
	StateApplied
	StateDiscarded
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateStaged:
		return "staged"
	case StatePresented:
		return "presented"
	case StateAccepted:
		return "accepted"
	case StateRejected:
		return "rejected"
	case StateApplied:
		return "applied"
	case StateDiscarded:
		return "discarded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s SessionState) Terminal() bool {
	return s == StateApplied || s == StateDiscarded || s == StateFailed
}

// Decision is the reviewer's verdict on a presented proposal.
type Decision int

const (
	DecisionAccept Decision = iota
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseDecision accepts "accept"/"approve"/"yes" and "reject"/"discard"/"no".
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept", "approve", "yes", "y":
		return DecisionAccept, nil
	case "reject", "discard", "no", "n":
		return DecisionReject, nil
	}
	return 0, fmt.Errorf("unknown decision %q", s)
}

// Sentinels a document host wraps so callers can classify its failures.
var (
	ErrNotFound = errors.New("document not found")
	ErrNotText  = errors.New("document is not plain text")
)

// ErrorKind classifies review failures.
type ErrorKind int

const (
	KindHostUnavailable ErrorKind = iota + 1
	KindDocumentNotText
	KindDiffUnavailable
	KindStagingIO
	KindCommitIO
	KindNotFound
	KindInvalidDecision
)

func (k ErrorKind) String() string {
	switch k {
	case KindHostUnavailable:
		return "host_unavailable"
	case KindDocumentNotText:
		return "document_not_text"
	case KindDiffUnavailable:
		return "diff_unavailable"
	case KindStagingIO:
		return "staging_io"
	case KindCommitIO:
		return "commit_io"
	case KindNotFound:
		return "not_found"
	case KindInvalidDecision:
		return "invalid_decision"
	default:
		return "unknown"
	}
}
