package harvester

import "github.com/contextunity/contextworker/internal/registry"

// Provider exposes the harvester's workflows and activities as a
// registrable module.
func Provider(activities *Activities) registry.Provider {
	return registry.ProviderFunc(func() []registry.ModuleConfig {
		return []registry.ModuleConfig{
			{
				Name:  "harvester",
				Queue: Queue,
				Workflows: []interface{}{
					HarvestWorkflow,
					HarvesterImportWorkflow,
				},
				Activities: []interface{}{
					activities.FetchVendorData,
					activities.ParseRawPayload,
					activities.UpdateStagingBuffer,
					activities.ProcessProductImages,
					activities.SyncPendingImages,
					activities.GenerateSEOContent,
					activities.ListSuppliers,
				},
				Enabled: true,
			},
		}
	})
}
