// Package fakes provides in-memory fakes of the AWS service clients used by
// paramctl, suitable for unit tests without network access.
package fakes
