package config

const (
	defaultDataDir              = "~/.local/share/tottales"
	defaultLogDir               = "~/.local/share/tottales/logs"
	defaultAPIBind              = "127.0.0.1:7512"
	defaultTextModel            = "gemini-2.5-flash"
	defaultVisionModel          = "gemini-2.5-flash"
	defaultImageModel           = "gemini-2.5-flash-image"
	defaultGeminiTimeoutSeconds = 60
	defaultStorageBackend       = StorageBackendLocal
	defaultStorageLocalDir      = "~/.local/share/tottales/objects"
	defaultPhotoBucket          = "child-photos"
	defaultStoryBucket          = "story-images"
	defaultPreviewBucket        = "preview-images"
	defaultPageCount            = 6
	defaultMaxPageCount         = 12
	defaultMaxRegenerations     = 3
	defaultPageInterval         = 1
	defaultIllustrationAttempts = 3
	defaultIllustrationBackoff  = 2
	defaultIllustrationTimeout  = 60
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Storage backend identifiers accepted by [storage].backend.
const (
	StorageBackendMinio = "minio"
	StorageBackendLocal = "local"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Gemini: Gemini{
			TextModel:      defaultTextModel,
			VisionModel:    defaultVisionModel,
			ImageModel:     defaultImageModel,
			TimeoutSeconds: defaultGeminiTimeoutSeconds,
		},
		Storage: Storage{
			Backend:       defaultStorageBackend,
			LocalDir:      defaultStorageLocalDir,
			PhotoBucket:   defaultPhotoBucket,
			StoryBucket:   defaultStoryBucket,
			PreviewBucket: defaultPreviewBucket,
		},
		Generation: Generation{
			DefaultPageCount:           defaultPageCount,
			MaxPageCount:               defaultMaxPageCount,
			MaxRegenerations:           defaultMaxRegenerations,
			PageIntervalSeconds:        defaultPageInterval,
			IllustrationAttempts:       defaultIllustrationAttempts,
			IllustrationBackoffSeconds: defaultIllustrationBackoff,
			IllustrationTimeoutSeconds: defaultIllustrationTimeout,
		},
		Safety: Safety{
			Blocking: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Stories:        true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
