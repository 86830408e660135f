// Package config loads and persists the two files local-mcp-manager reads.
//
// # Service file
//
// mcp_conf.json lists the managed MCP services under an mcpServers object, keyed by id:
//
//	{
//	  "mcpServers": {
//	    "files": {
//	      "name": "files",
//	      "command": "npx",
//	      "args": ["-y", "@modelcontextprotocol/server-filesystem", "{{ env \"HOME\" }}"],
//	      "out_port": 18001,
//	      "isActive": true
//	    },
//	    "search": {
//	      "url": "https://example.com/sse",
//	      "out_port": 18002
//	    }
//	  }
//	}
//
// The file is decoded with sigs.k8s.io/yaml so the same document can be written as YAML.
// When the file is missing, mcp_conf.example.json next to it is used instead.
//
// A service with a command is a local stdio service. Otherwise the url is reached with
// the declared type, or sse when the url contains /sse, or streamable-http.
//
// String values in args, env and cwd are Go templates with the Sprig function set.
// The template context carries .ID, .Name, .Host and .Port of the service.
//
// Saving the raw document, a single service entry or deleting one always validates
// first and copies the previous file to <file>.backup.<unix seconds>.
//
// # Settings file
//
// settings.yaml holds the manager's own knobs (web bind address, chat endpoint, timeouts).
// A missing settings file yields DefaultSettings.
package config
