// Package auth decides who may start batches on the HTTP front-end.
package auth
