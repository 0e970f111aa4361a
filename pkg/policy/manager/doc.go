// Package manager keeps the evaluator's policy set in step with a directory
// of policy documents.
//
// Each *.rego, *.json, *.yaml or *.yml file in the directory is an opaque
// document. Its id is the file stem and its version is a content digest,
// unless an optional manifest.yaml overrides either:
//
//	policies:
//	  - file: payments.rego
//	    id: payments
//	    version: "2025.03"
//
// Sync reconciles the directory against what was last pushed: new or
// changed documents are loaded, documents that disappeared are removed.
// With watching enabled, file events are debounced and each burst triggers
// one Sync.
//
// # Basic Usage
//
//	mgr, err := manager.New(&manager.Config{Directory: "policies", Watch: true}, eng)
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
package manager
