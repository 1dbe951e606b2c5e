// Package config is the tree-parsing layer in front of the merge engine.
// It loads YAML, JSON and CUE documents into merge.Node trees without
// losing mapping key order, and encodes result trees back to YAML or
// ordered JSON. The merge engine itself never touches serialization;
// everything format-shaped lives here.
package config
