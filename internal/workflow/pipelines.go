package workflow

// pipeline maps a command to its fixed ordered step list.
func (e *Engine) pipeline(cmd Command) Pipeline {
	switch cmd {
	case CommandBackup:
		return e.backupPipeline()
	case CommandDownload:
		return e.downloadPipeline()
	case CommandInstall:
		return e.installPipeline()
	case CommandRestore:
		return e.restorePipeline()
	default:
		return e.updatePipeline()
	}
}

func (e *Engine) backupPipeline() Pipeline {
	return Pipeline{
		Name: "backup",
		Preflight: []Step{
			{Name: "Detecting current versions", Run: e.probeInstalled},
		},
		Steps: []Step{
			{Name: "Stopping Docker service", Run: e.stopService},
			{Name: "Preparing working directory", Run: e.prepareWorkspace},
			{Name: "Backing up current files", Run: e.createBackup},
			{Name: "Starting Docker service", Run: e.startService},
		},
	}
}

func (e *Engine) downloadPipeline() Pipeline {
	return Pipeline{
		Name: "download",
		Preflight: []Step{
			{Name: "Detecting current versions", Run: e.probeInstalled},
			{Name: "Resolving target versions", Run: e.resolveRemoteTargets},
		},
		Steps: []Step{
			{Name: "Preparing working directory", Run: e.prepareWorkspace},
			{Name: "Downloading target Docker binary", Run: e.downloadDocker},
			{Name: "Downloading target Docker Compose binary", Run: e.downloadCompose},
		},
	}
}

func (e *Engine) installPipeline() Pipeline {
	return Pipeline{
		Name: "install",
		Preflight: []Step{
			{Name: "Detecting current versions", Run: e.probeInstalled},
			{Name: "Resolving target versions from local archives", Run: e.resolveLocalTargets},
		},
		Steps: []Step{
			{Name: "Stopping Docker service", Run: e.stopService},
			{Name: "Preparing working directory", Run: e.prepareWorkspace},
			{Name: "Backing up current files", Run: e.createBackup},
			{Name: "Extracting Docker binaries", Run: e.extractDocker},
			{Name: "Installing binaries", Run: e.installBinaries},
			{Name: "Configuring log driver", Run: e.writeDaemonConfig},
			{Name: "Starting Docker service", Run: e.startService},
		},
	}
}

func (e *Engine) restorePipeline() Pipeline {
	return Pipeline{
		Name: "restore",
		Preflight: []Step{
			{Name: "Detecting current versions", Run: e.probeInstalled},
		},
		Steps: []Step{
			{Name: "Stopping Docker service", Run: e.stopService},
			{Name: "Extracting backup files", Run: e.extractBackup},
			{Name: "Restoring Docker binaries", Run: e.restoreBinaries},
			{Name: "Restoring Docker daemon configuration", Run: e.restoreConfig},
			{Name: "Starting Docker service", Run: e.startService},
		},
	}
}

func (e *Engine) updatePipeline() Pipeline {
	skipDocker := func(wf *Context) bool { return !wf.SkipDocker }
	skipCompose := func(wf *Context) bool { return !wf.SkipCompose }

	return Pipeline{
		Name: "update",
		Preflight: []Step{
			{Name: "Detecting current versions", Run: e.probeInstalled},
			{Name: "Resolving target versions", Run: e.resolveRemoteTargets},
			{Name: "Checking whether an update is needed", Run: e.decideUpdateSkips},
		},
		Steps: []Step{
			{Name: "Stopping Docker service", Run: e.stopService},
			{Name: "Preparing working directory", Run: e.prepareWorkspace},
			{Name: "Backing up current files", Run: e.createBackup},
			{Name: "Downloading target Docker binary", Run: e.downloadDocker, Applicable: skipDocker},
			{Name: "Extracting Docker binaries", Run: e.extractDocker, Applicable: skipDocker},
			{Name: "Downloading target Docker Compose binary", Run: e.downloadCompose, Applicable: skipCompose},
			{Name: "Installing binaries", Run: e.installBinaries},
			{Name: "Configuring log driver", Run: e.writeDaemonConfig},
			{Name: "Starting Docker service", Run: e.startService},
			{Name: "Cleaning working directory", Run: e.cleanWorkspace},
		},
	}
}
