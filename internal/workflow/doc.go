// Package workflow contains the pipeline core: ordered, failure-aware
// command pipelines (backup, download, install, restore, update) built
// from named steps over a single explicit run context. Collaborators
// (version probing, service control, downloads) enter through narrow
// interfaces so pipelines stay testable without a DSM host.
package workflow
