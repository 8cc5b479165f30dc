// Package config provides configuration loading, merging, and path management for lessonpipe.
//
// # Configuration Loading
//
// Load merges configuration from multiple sources in priority order:
//
//  1. Built-in defaults (Defaults)
//  2. Global config (~/.config/lessonpipe/, or LESSONPIPE_CONFIG_DIR)
//  3. Project config in the working directory
//  4. LESSONPIPE_CONFIG file
//  5. LESSONPIPE_CONFIG_CONTENT inline JSON
//  6. Environment variables, after loading the project .env file
//
// # Supported Formats
//
//   - lessonpipe.json - Standard JSON configuration
//   - lessonpipe.jsonc - JSON with comments, processed using tidwall/jsonc
//   - lessonpipe.yaml / lessonpipe.yml - YAML with the same keys
//
// Missing files are skipped. A file that exists but does not parse fails Load.
//
// # Variable Interpolation
//
// String values may contain {env:VAR_NAME}, which expands to the value of the
// environment variable:
//
//	{
//	  "generation": {
//	    "endpoint": "https://lessons.example.com/api/generate",
//	    "token": "{env:LESSONS_TOKEN}"
//	  }
//	}
//
// # Configuration Merging
//
// Later sources overwrite earlier ones field by field. Empty and zero values never
// overwrite, so a project file can set only the fields it cares about.
//
// # Environment Variable Overrides
//
//   - LESSONPIPE_GENERATION_URL - Generation service endpoint
//   - LESSONPIPE_GENERATION_TOKEN - Bearer token for the generation service
//   - LESSONPIPE_STORE - Store backend (file, sqlite, redis, memory)
//   - LESSONPIPE_STORE_PATH - Store directory or database file
//   - LESSONPIPE_REDIS_ADDR - Redis address for the redis backend
//   - LESSONPIPE_MAX_RETRIES - Retry cap per session
//   - LESSONPIPE_LOG_LEVEL - Log level
//
// # Path Management
//
// Paths follow the XDG Base Directory Specification:
//   - Data: ~/.local/share/lessonpipe (XDG_DATA_HOME)
//   - Config: ~/.config/lessonpipe (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/lessonpipe (XDG_CACHE_HOME)
//   - State: ~/.local/state/lessonpipe (XDG_STATE_HOME)
//
// On Windows, these paths are adapted to use APPDATA as appropriate.
package config
