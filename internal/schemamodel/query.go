package schemamodel

// IntrospectionQuery fetches the subset of the schema the list views need:
// the query root and every type with its fields, wrappers unrolled four levels deep.
const IntrospectionQuery = `query IntrospectionQuery {
  __schema {
    queryType { name }
    types {
      kind
      name
      fields(includeDeprecated: true) {
        name
        type { ...TypeRef }
      }
    }
  }
}

fragment TypeRef on __Type {
  kind
  name
  ofType {
    kind
    name
    ofType {
      kind
      name
      ofType {
        kind
        name
        ofType { kind name }
      }
    }
  }
}`
