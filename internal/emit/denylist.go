package emit

// binaryExtensions are never embedded as file content.
var binaryExtensions = []string{
	// archives
	".zip", ".tar", ".gz", ".tgz", ".bz2", ".xz", ".7z", ".rar", ".jar", ".war",
	// compiled objects
	".exe", ".dll", ".so", ".dylib", ".o", ".a", ".obj", ".lib", ".class", ".pyc", ".pyo", ".wasm", ".bin",
	// images
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".webp", ".tif", ".tiff", ".psd", ".icns",
	// audio and video
	".mp3", ".wav", ".ogg", ".flac", ".aac", ".m4a", ".mp4", ".mov", ".avi", ".mkv", ".webm", ".wmv",
	// office documents
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".odt", ".ods",
	// fonts and databases
	".ttf", ".otf", ".woff", ".woff2", ".eot", ".sqlite", ".db",
}

const usageInstructions = `Reply with every file you change, inside a single root element:
<changes>
  <file path="relative/path/to/file" action="create|rewrite|delete">
    <change>
      <description>Short summary of the change</description>
      <content>
===
complete new file content
===
      </content>
    </change>
  </file>
</changes>
Rules:
- Always give the complete file content between the === lines, never a fragment.
- To remove a file use action="delete" without a change element.
- Paths are relative to the workspace root shown in the file map.
- Only include files you actually change.
`
