package apperr

// Domain errors for the Ghost Mode core. Credential failures deliberately share
// generic messages so responses never reveal which check failed.
var (
	ErrAlreadyConfigured   = AlreadyExists("ghost mode is already configured")
	ErrInvalidPinFormat    = InvalidArg("pin must be 4-8 digits")
	ErrNotConfigured       = NotFound("ghost mode is not configured")
	ErrInvalidCredential   = Unauthorized("invalid credentials")
	ErrInvalidSession      = Unauthorized("invalid ghost session")
	ErrSessionExpired      = Unauthorized("ghost session expired")
	ErrGhostLocked         = Unauthorized("ghost mode is locked")
	ErrDisclaimerRequired  = FailedPrecondition("disclaimer agreement is required")
	ErrInvalidOrExpiredPin = Unauthorized("invalid or expired pin")
	ErrNoAccess            = Forbidden("no access to this session")
	ErrNotAParticipant     = Forbidden("not a participant of this session")
	ErrSessionNotFound     = NotFound("session not found")
	ErrMessageNotFound     = NotFound("message not found")
	ErrNotRecipient        = Forbidden("only the recipient can view this message")
	ErrDecryptionFailed    = New(CodeInternal, "decryption failed")
)
