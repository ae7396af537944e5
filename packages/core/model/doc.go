// Package model defines the documents hitrun executes: projects, folders,
// requests, environments, certificates and the flows attached to requests.
//
// Projects are stored as JSON or YAML. Loading validates the document
// against an embedded JSON schema and assigns keys to items that lack one.
package model
