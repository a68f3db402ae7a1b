package settings

const CmdName = "gpuprof"
