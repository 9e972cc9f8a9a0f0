package handlers

// MsgTooManyAttempts exposes msgTooManyAttempts to external test packages.
const MsgTooManyAttempts = msgTooManyAttempts
