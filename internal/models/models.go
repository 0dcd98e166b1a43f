package models

// Model defines the base interface for all persistent models in the music proxy service.
type Model interface {
	Key() string     // Key returns the unique identifier for this model
	Validate() error // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error       // Create inserts a new model into the database
	Get(key string) (T, error)  // Get retrieves a model by its key
	Update(model T) error       // Update modifies an existing model in the database
	Delete(key string) error    // Delete removes a model from the database by its key
}
