// Package schema resolves logical entity names to concrete storage tables.
//
// Tables are registered once at startup from the storage catalog using the
// <namespace>_<entity> naming convention, after which the registry is marked
// ready and becomes read-only. Resolution fails loudly: an unknown name, or a
// name registered under several namespaces without a configured override,
// yields a *ConfigError that names the candidates and the setting to change.
//
// The reconciliation engine never resolves names itself; callers resolve a
// Tables value up front and hand it to the engine constructors.
package schema
