package lifecycle

import (
	"context"
	"fmt"
	"sync"
)

// Property ids the engine updates.
const (
	PropertyName                   = "cmis:name"
	PropertyDescription            = "cmis:description"
	PropertySecondaryObjectTypeIDs = "cmis:secondaryObjectTypeIds"
)

// StaticTypeManager serves type definitions from memory. The five CMIS
// base types are always present.
type StaticTypeManager struct {
	mu    sync.RWMutex
	types map[string]*TypeDefinition
}

// NewStaticTypeManager creates a type manager holding the base types and extra.
func NewStaticTypeManager(extra ...*TypeDefinition) *StaticTypeManager {
	tm := &StaticTypeManager{types: make(map[string]*TypeDefinition)}
	for _, td := range baseTypeDefinitions() {
		tm.types[td.ID] = td
	}
	for _, td := range extra {
		tm.types[td.ID] = td
	}
	return tm
}

// Register adds or replaces a type definition.
func (tm *StaticTypeManager) Register(td *TypeDefinition) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.types[td.ID] = td
}

// GetTypeDefinition implements TypeManager. Definitions are shared across
// repositories.
func (tm *StaticTypeManager) GetTypeDefinition(ctx context.Context, repositoryID, typeID string) (*TypeDefinition, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	td, ok := tm.types[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidArgument, typeID)
	}
	return td, nil
}

// BasePropertyDefinitions returns the properties every type carries.
func BasePropertyDefinitions() map[string]PropertyDefinition {
	return map[string]PropertyDefinition{
		PropertyName:                   {ID: PropertyName, Updatability: UpdatabilityReadWrite},
		PropertyDescription:            {ID: PropertyDescription, Updatability: UpdatabilityReadWrite},
		PropertySecondaryObjectTypeIDs: {ID: PropertySecondaryObjectTypeIDs, Updatability: UpdatabilityReadWrite},
	}
}

func baseTypeDefinitions() []*TypeDefinition {
	return []*TypeDefinition{
		{ID: string(BaseTypeDocument), BaseType: BaseTypeDocument, Fileable: true, ContentStreamAllowed: ContentStreamAllowedOpt, PropertyDefinitions: BasePropertyDefinitions()},
		{ID: string(BaseTypeFolder), BaseType: BaseTypeFolder, Fileable: true, ContentStreamAllowed: ContentStreamNotAllowed, PropertyDefinitions: BasePropertyDefinitions()},
		{ID: string(BaseTypeRelationship), BaseType: BaseTypeRelationship, ContentStreamAllowed: ContentStreamNotAllowed, PropertyDefinitions: BasePropertyDefinitions()},
		{ID: string(BaseTypePolicy), BaseType: BaseTypePolicy, ContentStreamAllowed: ContentStreamNotAllowed, PropertyDefinitions: BasePropertyDefinitions()},
		{ID: string(BaseTypeItem), BaseType: BaseTypeItem, Fileable: true, ContentStreamAllowed: ContentStreamNotAllowed, PropertyDefinitions: BasePropertyDefinitions()},
	}
}
