package model

import (
	"encoding/json"
	"fmt"
)

// Property is an environment variable definition
type Property struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled *bool  `json:"enabled,omitempty"`
}

func (p Property) IsEnabled() bool {
	return getBool(p.Enabled, true)
}

// Server is the base URI an environment points requests at
type Server struct {
	URI string `json:"uri"`
}

// Environment is a named set of variables. An encapsulated environment
// hides the environments of the enclosing scopes.
type Environment struct {
	Key          string     `json:"key"`
	Info         Info       `json:"info"`
	Server       *Server    `json:"server,omitempty"`
	Variables    []Property `json:"variables,omitempty"`
	Encapsulated bool       `json:"encapsulated,omitempty"`
}

// Certificate is a PEM encoded client certificate and its private key
type Certificate struct {
	Key     string `json:"key"`
	Name    string `json:"name,omitempty"`
	Cert    string `json:"cert"`
	CertKey string `json:"certKey"`
}

// ItemKind discriminates the entries of a folder
type ItemKind string

const (
	KindFolder  ItemKind = "folder"
	KindRequest ItemKind = "request"
)

// Item is either a folder or a request
type Item struct {
	Folder  *Folder
	Request *Request
}

func (i *Item) Kind() ItemKind {
	if i.Folder != nil {
		return KindFolder
	}
	return KindRequest
}

// Key returns the key of the wrapped document
func (i *Item) Key() string {
	if i.Folder != nil {
		return i.Folder.Key
	}
	if i.Request != nil {
		return i.Request.Key
	}
	return ""
}

func (i *Item) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind ItemKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Kind {
	case KindFolder:
		i.Folder = &Folder{}
		return json.Unmarshal(data, i.Folder)
	case KindRequest, "":
		i.Request = &Request{}
		return json.Unmarshal(data, i.Request)
	default:
		return fmt.Errorf("unknown item kind %q", head.Kind)
	}
}

func (i Item) MarshalJSON() ([]byte, error) {
	var doc any = i.Request
	if i.Folder != nil {
		doc = i.Folder
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	kind, _ := json.Marshal(i.Kind())
	fields["kind"] = kind
	return json.Marshal(fields)
}

// Folder groups items and may carry its own environments
type Folder struct {
	Key          string         `json:"key"`
	Info         Info           `json:"info"`
	Items        []*Item        `json:"items,omitempty"`
	Environments []*Environment `json:"environments,omitempty"`
}

// Project is the root of a request tree
type Project struct {
	Key          string         `json:"key"`
	Info         Info           `json:"info"`
	Items        []*Item        `json:"items,omitempty"`
	Environments []*Environment `json:"environments,omitempty"`
	Certificates []*Certificate `json:"certificates,omitempty"`
}

// FindFolder looks a folder up by key, then by name, anywhere in the tree.
// It also returns the chain of folders from the top level down to it.
func (p *Project) FindFolder(keyOrName string) (*Folder, []*Folder) {
	if chain := findFolder(p.Items, nil, func(f *Folder) bool { return f.Key == keyOrName }); chain != nil {
		return chain[len(chain)-1], chain
	}
	if chain := findFolder(p.Items, nil, func(f *Folder) bool { return f.Info.Name == keyOrName }); chain != nil {
		return chain[len(chain)-1], chain
	}
	return nil, nil
}

func findFolder(items []*Item, parents []*Folder, match func(*Folder) bool) []*Folder {
	for _, item := range items {
		if item.Folder == nil {
			continue
		}
		chain := append(append([]*Folder(nil), parents...), item.Folder)
		if match(item.Folder) {
			return chain
		}
		if found := findFolder(item.Folder.Items, chain, match); found != nil {
			return found
		}
	}
	return nil
}

// FindCertificate returns the certificate with key
func (p *Project) FindCertificate(key string) *Certificate {
	for _, c := range p.Certificates {
		if c.Key == key {
			return c
		}
	}
	return nil
}

// FindEnvironment looks an environment up by key, then by name
func FindEnvironment(envs []*Environment, keyOrName string) *Environment {
	for _, e := range envs {
		if e.Key == keyOrName {
			return e
		}
	}
	for _, e := range envs {
		if e.Info.Name == keyOrName {
			return e
		}
	}
	return nil
}

// Walk calls fn for every request under items in tree order. Folders are
// descended into only when recursive is set.
func Walk(items []*Item, recursive bool, fn func(*Request)) {
	for _, item := range items {
		switch {
		case item.Request != nil:
			fn(item.Request)
		case item.Folder != nil && recursive:
			Walk(item.Folder.Items, recursive, fn)
		}
	}
}
