// Package dag implements the dependency graph over flow steps. The graph is
// built once from the loaded config model, validated for unknown references
// and cycles, and then only queried: the scheduler asks for dependencies to
// decide eligibility, and the session asks for transitive dependents to
// cascade invalidation on restart.
package dag
