// Package backend is the HTTP client for the data-concentrator REST surface.
//
// Success is exactly HTTP 200. Every other status is a *ServerError and every
// transport failure is a *NetworkError; neither is classified as retryable.
package backend
