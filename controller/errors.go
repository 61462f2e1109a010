package controller

import "errors"

var (
	ErrParseRequest = errors.New("failed to parse request")

	ErrGetUploadFile   = errors.New("failed to get uploaded file")
	ErrFileTooLarge    = errors.New("uploaded file is too large")
	ErrProcessDocument = errors.New("Failed to process PDF")

	ErrSessionNotFound = errors.New("Session not found. Please upload a PDF first.")
	ErrCallAgent       = errors.New("Error while processing chat")
)
