package errors

import stderrors "errors"

var (
	ErrInvalidAmount         = stderrors.New("dao: invalid amount")
	ErrLimitExceeded         = stderrors.New("dao: unit limit exceeded")
	ErrTransferNotAuthorized = stderrors.New("ERC20 transfer not allowed")
	ErrNotFound              = stderrors.New("dao: not found")
	ErrInvalidState          = stderrors.New("dao: invalid proposal state")
	ErrVotingNotConcluded    = stderrors.New("dao: voting not concluded")
	ErrOverflow              = stderrors.New("dao: arithmetic overflow")
	ErrInsufficientBalance   = stderrors.New("dao: insufficient balance")
	ErrNotMember             = stderrors.New("dao: caller is not a member")
	ErrAlreadyVoted          = stderrors.New("dao: already voted")
	ErrModulePaused          = stderrors.New("module paused")
)

// Stable machine codes reported to API clients.
const (
	CodeInvalidAmount         = "INVALID_AMOUNT"
	CodeLimitExceeded         = "LIMIT_EXCEEDED"
	CodeTransferNotAuthorized = "ERC20_TRANSFER_NOT_ALLOWED"
	CodeNotFound              = "NOT_FOUND"
	CodeInvalidState          = "INVALID_STATE"
	CodeVotingNotConcluded    = "VOTING_NOT_CONCLUDED"
	CodeOverflow              = "OVERFLOW"
	CodeInsufficientBalance   = "INSUFFICIENT_BALANCE"
	CodeNotMember             = "NOT_MEMBER"
	CodeAlreadyVoted          = "ALREADY_VOTED"
	CodeModulePaused          = "MODULE_PAUSED"
	CodeInternal              = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidAmount, CodeInvalidAmount},
	{ErrLimitExceeded, CodeLimitExceeded},
	{ErrTransferNotAuthorized, CodeTransferNotAuthorized},
	{ErrNotFound, CodeNotFound},
	{ErrInvalidState, CodeInvalidState},
	{ErrVotingNotConcluded, CodeVotingNotConcluded},
	{ErrOverflow, CodeOverflow},
	{ErrInsufficientBalance, CodeInsufficientBalance},
	{ErrNotMember, CodeNotMember},
	{ErrAlreadyVoted, CodeAlreadyVoted},
	{ErrModulePaused, CodeModulePaused},
}

// Code returns the stable code for err, CodeInternal for unclassified errors
// and the empty string for nil.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range codes {
		if stderrors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}
